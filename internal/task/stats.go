package task

// TaskStats 汇总一组任务的状态分布与回答结果分布，供 /api/v1/tasks/stats 使用。
type TaskStats struct {
	Total           int            `json:"total"`
	Pending         int            `json:"pending"`
	Running         int            `json:"running"`
	Succeeded       int            `json:"succeeded"`
	Failed          int            `json:"failed"`
	Outcomes        map[string]int `json:"outcomes,omitempty"`
	OldestUpdatedAt int64          `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64          `json:"newest_updated_at,omitempty"`
}

// Finished 返回已经成功或失败的任务数。
func (s TaskStats) Finished() int {
	return s.Succeeded + s.Failed
}

func (s *TaskStats) add(task *Task) {
	s.addStatus(task.Status, 1, task.UpdatedAt, task.UpdatedAt)
	if task.Result != nil && task.Result.Outcome != "" {
		s.addOutcome(task.Result.Outcome, 1)
	}
}

// addStatus 累加 n 个处于 status 的任务，oldest/newest 为这批任务的更新时间范围。
func (s *TaskStats) addStatus(status Status, n int, oldest, newest int64) {
	s.Total += n
	switch status {
	case StatusPending:
		s.Pending += n
	case StatusRunning:
		s.Running += n
	case StatusSucceeded:
		s.Succeeded += n
	case StatusFailed:
		s.Failed += n
	}
	if newest > s.NewestUpdatedAt {
		s.NewestUpdatedAt = newest
	}
	if oldest != 0 && (s.OldestUpdatedAt == 0 || oldest < s.OldestUpdatedAt) {
		s.OldestUpdatedAt = oldest
	}
}

func (s *TaskStats) addOutcome(outcome string, n int) {
	if s.Outcomes == nil {
		s.Outcomes = make(map[string]int)
	}
	s.Outcomes[outcome] += n
}
