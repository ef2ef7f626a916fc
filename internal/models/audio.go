package models

import "time"

// AudioItem records one synthesized audio artifact. Created exactly
// once by the worker after synthesis succeeds; never mutated afterwards
// except for the soft-delete flag.
type AudioItem struct {
	UID        string `gorm:"primaryKey;size:36" json:"l_item_uid"`
	StorageKey string `gorm:"size:512" json:"storage_key"`
	PublicURL  string `gorm:"size:1024" json:"public_url"`
	Deleted    bool   `json:"deleted"`
	CreatedAt  time.Time
}
