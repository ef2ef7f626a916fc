package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PendingAudioUID is the reserved audio_uid value meaning "generation in
// progress". It is distinct from NULL (no audio yet) and from any real
// artifact UID. Call sites never compare against it directly; they go
// through AudioState.
var PendingAudioUID = uuid.Nil.String()

// AudioRefState is the decoded state of a ContentItem's audio reference.
type AudioRefState int

const (
	AudioEmpty   AudioRefState = iota // no audio yet
	AudioPending                      // a job holds the lock
	AudioReady                        // a real artifact is linked
)

// ContentItem is a user-owned piece of study content. AudioUID is the
// nullable reference column: NULL, the pending sentinel, or the UID of
// a linked AudioItem.
type ContentItem struct {
	ID              uint    `gorm:"primaryKey" json:"rl_item_id"`
	UserID          uint    `gorm:"index" json:"user_id"`
	Title           string  `gorm:"size:256" json:"title"`
	Text            string  `gorm:"type:text" json:"r_item"`
	AudioUID        *string `gorm:"size:36;column:audio_uid" json:"l_item_uid"`
	DeleteRequested bool    `json:"delete_requested"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AudioState decodes the audio reference. The returned uid is only
// meaningful for AudioReady.
func (ci *ContentItem) AudioState() (AudioRefState, string) {
	if ci.AudioUID == nil {
		return AudioEmpty, ""
	}
	if *ci.AudioUID == PendingAudioUID {
		return AudioPending, ""
	}
	return AudioReady, *ci.AudioUID
}

// ReserveAudio sets the pending sentinel, but only if no audio exists
// and no job holds the lock. Returns false when the item was already
// reserved or linked, which makes the reserve safe against two jobs
// racing past the submission check.
func ReserveAudio(db *gorm.DB, contentItemID uint) (bool, error) {
	res := db.Model(&ContentItem{}).
		Where("id = ? AND audio_uid IS NULL", contentItemID).
		Update("audio_uid", PendingAudioUID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReleaseAudioLock clears the sentinel back to NULL. The compensating
// action of a failed job; a no-op if the item is not locked.
func ReleaseAudioLock(db *gorm.DB, contentItemID uint) error {
	return db.Model(&ContentItem{}).
		Where("id = ? AND audio_uid = ?", contentItemID, PendingAudioUID).
		Update("audio_uid", nil).Error
}

// LinkAudio replaces the sentinel with the real artifact UID.
func LinkAudio(db *gorm.DB, contentItemID uint, audioUID string) error {
	res := db.Model(&ContentItem{}).
		Where("id = ? AND audio_uid = ?", contentItemID, PendingAudioUID).
		Update("audio_uid", audioUID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UnlinkAudio clears the reference, but only while it still points at
// audioUID. The compensating action of a job that fails after linking;
// a reference some other job wrote in the meantime is left untouched.
func UnlinkAudio(db *gorm.DB, contentItemID uint, audioUID string) error {
	return db.Model(&ContentItem{}).
		Where("id = ? AND audio_uid = ?", contentItemID, audioUID).
		Update("audio_uid", nil).Error
}

// DeleteContentItem hard-deletes an item that has no audio. Items with
// a linked or in-flight artifact only get the delete-requested flag, so
// a running job never loses its row out from under it.
func DeleteContentItem(db *gorm.DB, item *ContentItem) error {
	if state, _ := item.AudioState(); state == AudioEmpty {
		return db.Delete(item).Error
	}
	return db.Model(item).Update("delete_requested", true).Error
}
