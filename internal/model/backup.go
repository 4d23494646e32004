package model

import "time"

// Backup is one stored credential snapshot and its account metadata.
type Backup struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	SubscriptionType string    `json:"subscription_type"`
	FolderID         string    `json:"folder_id"`
	Balance          float64   `json:"balance"`
	CreatedAt        time.Time `json:"created_at"`
	LastUsedAt       time.Time `json:"last_used_at"`
	Active           bool      `json:"active"`
	Path             string    `json:"-"`
}

// SwitchEvent records one credential switch performed by the monitor.
type SwitchEvent struct {
	ID         string    `json:"id"`
	At         time.Time `json:"at"`
	FromBackup string    `json:"from_backup"`
	ToBackup   string    `json:"to_backup"`
	Balance    float64   `json:"balance"`
	Reason     string    `json:"reason"`
}

// BalanceSample is one polled balance observation for a backup.
type BalanceSample struct {
	At       time.Time `json:"at"`
	BackupID string    `json:"backup_id"`
	Balance  float64   `json:"balance"`
}
