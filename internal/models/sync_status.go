package models

import "time"

// SyncState es el estado de una corrida para una tienda
type SyncState string

const (
	StateIdle         SyncState = "idle"
	StateRunning      SyncState = "running"
	StateReprocessing SyncState = "reprocessing"
	StateDone         SyncState = "done"
	StateError        SyncState = "error"
)

// Terminal indica si el estado es final para una corrida
func (s SyncState) Terminal() bool {
	return s == StateIdle || s == StateDone || s == StateError
}

// SyncStatus es el registro de progreso que consulta el dashboard
type SyncStatus struct {
	DBName     string     `json:"dbName" bson:"_id"`
	RunID      string     `json:"runId" bson:"runId"`
	State      SyncState  `json:"state" bson:"state"`
	Stopped    bool       `json:"stopped" bson:"stopped"`
	Total      int        `json:"total" bson:"total"`
	Done       int        `json:"done" bson:"done"`
	Progress   int        `json:"progress" bson:"progress"`
	StartedAt  *time.Time `json:"startedAt" bson:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt" bson:"finishedAt"`
	Logs       []string   `json:"logs" bson:"logs"`
}

// ProgressPercent calcula el porcentaje entero 0-100
func ProgressPercent(done, total int) int {
	if total <= 0 {
		return 0
	}
	p := done * 100 / total
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
