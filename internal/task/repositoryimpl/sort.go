package repositoryimpl

import (
	"sort"

	"github.com/kazz187/ganttguild/internal/task"
)

// sortTasks orders by CreatedAt, then ID. ULIDs sort by creation time, so
// imported tasks sharing one timestamp keep their import order.
func sortTasks(tasks []*task.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
