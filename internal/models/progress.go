/**
 * @description
 * Gamified progress entities: tiered tasks and the badges derived from them.
 *
 * @notes
 * - Task status only ever moves forward: locked -> in_progress -> completed.
 * - A badge's earned flag flips false -> true exactly once and is never revoked.
 */

package models

import "time"

// Tier ranks progressively harder thresholds within one task family.
type Tier string

const (
	TierNone     Tier = "none"
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// TaskStatus is the evaluated state of one task.
type TaskStatus string

const (
	TaskLocked     TaskStatus = "locked"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

// Task is one gamified objective evaluated from the latest aggregated state.
type Task struct {
	ID          string     `json:"id"`
	Family      string     `json:"family"`
	Title       string     `json:"title"`
	Tier        Tier       `json:"tier"`
	Target      float64    `json:"target"`
	Current     float64    `json:"current"`
	ProgressPct float64    `json:"progress_pct"` // clamped to [0, 100]
	Status      TaskStatus `json:"status"`
}

// Badge is a named achievement derived 1:1 from a completed task.
type Badge struct {
	ID       string     `json:"id"`
	TaskID   string     `json:"task_id"`
	Title    string     `json:"title"`
	Tier     Tier       `json:"tier"`
	Earned   bool       `json:"earned"`
	EarnedAt *time.Time `json:"earned_at,omitempty"`
}
