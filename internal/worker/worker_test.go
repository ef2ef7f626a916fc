package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"LexiLoom/internal/models"
	"LexiLoom/pkg/database"
	"LexiLoom/pkg/storage"
	"LexiLoom/pkg/tts"
)

type fakeSynth struct {
	result *tts.Result
	err    error

	// observed is the audio state of the content item at the moment the
	// synthesis call runs, captured to prove the lock is taken first.
	observed models.AudioRefState
	db       *gorm.DB
	itemID   uint
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) (*tts.Result, error) {
	if f.db != nil {
		var item models.ContentItem
		if err := f.db.First(&item, f.itemID).Error; err == nil {
			f.observed, _ = item.AudioState()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newWorkerEnv(t *testing.T) (*gorm.DB, *storage.MemoryStore) {
	t.Helper()
	db, err := database.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	return db, storage.NewMemoryStore()
}

func testConfig() Config {
	return Config{PublicACL: false, SignedURLTTL: time.Hour, TokenCost: 7}
}

func TestWorkerSuccess(t *testing.T) {
	db, store := newWorkerEnv(t)
	require.NoError(t, db.Create(&models.ContentItem{UserID: 1, Text: "hola"}).Error)
	require.NoError(t, db.Create(&models.TokenBalance{UserID: 1, Free: 3, Paid: 10}).Error)
	require.NoError(t, db.Create(&models.AudioJob{ContentItemID: 1, UserID: 1, Status: models.JobPending}).Error)

	synth := &fakeSynth{result: &tts.Result{Audio: []byte("mp3-bytes"), Format: "mp3"}, db: db, itemID: 1}
	w := New(db, store, synth, testConfig())

	w.Run(context.Background(), Job{JobID: 1, UserID: 1, ContentItemID: 1, Text: "hola"})

	// The lock is visible while synthesis runs.
	assert.Equal(t, models.AudioPending, synth.observed)

	var item models.ContentItem
	require.NoError(t, db.First(&item, 1).Error)
	state, uid := item.AudioState()
	require.Equal(t, models.AudioReady, state)

	var audio models.AudioItem
	require.NoError(t, db.First(&audio, "uid = ?", uid).Error)
	assert.Equal(t, "files/"+uid+".mp3", audio.StorageKey)
	assert.NotEmpty(t, audio.PublicURL)

	exists, err := store.Exists(context.Background(), audio.StorageKey)
	require.NoError(t, err)
	assert.True(t, exists)

	var b models.TokenBalance
	require.NoError(t, db.First(&b, "user_id = ?", 1).Error)
	assert.Equal(t, int64(0), b.Free)
	assert.Equal(t, int64(6), b.Paid)

	var job models.AudioJob
	require.NoError(t, db.First(&job, 1).Error)
	assert.Equal(t, models.JobSucceeded, job.Status)
}

func TestWorkerSynthesisFailureRollsBack(t *testing.T) {
	db, store := newWorkerEnv(t)
	require.NoError(t, db.Create(&models.ContentItem{UserID: 1, Text: "hola"}).Error)
	require.NoError(t, db.Create(&models.TokenBalance{UserID: 1, Free: 3, Paid: 10}).Error)
	require.NoError(t, db.Create(&models.AudioJob{ContentItemID: 1, UserID: 1, Status: models.JobPending}).Error)

	synth := &fakeSynth{err: errors.New("gateway returned 500")}
	w := New(db, store, synth, testConfig())

	w.Run(context.Background(), Job{JobID: 1, UserID: 1, ContentItemID: 1, Text: "hola"})

	var item models.ContentItem
	require.NoError(t, db.First(&item, 1).Error)
	state, _ := item.AudioState()
	assert.Equal(t, models.AudioEmpty, state)

	var count int64
	require.NoError(t, db.Model(&models.AudioItem{}).Count(&count).Error)
	assert.Zero(t, count)

	var b models.TokenBalance
	require.NoError(t, db.First(&b, "user_id = ?", 1).Error)
	assert.Equal(t, int64(3), b.Free)
	assert.Equal(t, int64(10), b.Paid)

	var job models.AudioJob
	require.NoError(t, db.First(&job, 1).Error)
	assert.Equal(t, models.JobFailed, job.Status)
	assert.Contains(t, job.Error, "gateway returned 500")
}

func TestWorkerUploadFailureRollsBack(t *testing.T) {
	db, store := newWorkerEnv(t)
	store.WriteErr = errors.New("bucket unavailable")
	require.NoError(t, db.Create(&models.ContentItem{UserID: 1, Text: "hola"}).Error)
	require.NoError(t, db.Create(&models.TokenBalance{UserID: 1, Free: 10, Paid: 0}).Error)

	synth := &fakeSynth{result: &tts.Result{Audio: []byte("x"), Format: "mp3"}}
	w := New(db, store, synth, testConfig())

	w.Run(context.Background(), Job{UserID: 1, ContentItemID: 1, Text: "hola"})

	var item models.ContentItem
	require.NoError(t, db.First(&item, 1).Error)
	state, _ := item.AudioState()
	assert.Equal(t, models.AudioEmpty, state)

	var b models.TokenBalance
	require.NoError(t, db.First(&b, "user_id = ?", 1).Error)
	assert.Equal(t, int64(10), b.Free)
}

func TestWorkerLosesReserveRace(t *testing.T) {
	db, store := newWorkerEnv(t)
	require.NoError(t, db.Create(&models.ContentItem{UserID: 1, Text: "hola", AudioUID: &models.PendingAudioUID}).Error)
	require.NoError(t, db.Create(&models.AudioJob{ContentItemID: 1, UserID: 1, Status: models.JobPending}).Error)

	synth := &fakeSynth{result: &tts.Result{Audio: []byte("x"), Format: "mp3"}}
	w := New(db, store, synth, testConfig())

	w.Run(context.Background(), Job{JobID: 1, UserID: 1, ContentItemID: 1, Text: "hola"})

	// The loser must not clear the winner's lock.
	var item models.ContentItem
	require.NoError(t, db.First(&item, 1).Error)
	state, _ := item.AudioState()
	assert.Equal(t, models.AudioPending, state)

	var job models.AudioJob
	require.NoError(t, db.First(&job, 1).Error)
	assert.Equal(t, models.JobFailed, job.Status)
}

// blockingSynth parks inside the synthesis call until released, so a
// test can interleave other work while a job is mid-flight.
type blockingSynth struct {
	entered chan struct{}
	release chan struct{}
	err     error
}

func (s *blockingSynth) Synthesize(ctx context.Context, text string) (*tts.Result, error) {
	close(s.entered)
	<-s.release
	if s.err != nil {
		return nil, s.err
	}
	return &tts.Result{Audio: []byte("x"), Format: "mp3"}, nil
}

func TestWorkerRollbackAfterSweepLeavesNewLinkAlone(t *testing.T) {
	db, _ := newWorkerEnv(t)
	require.NoError(t, db.Create(&models.ContentItem{UserID: 1, Text: "hola"}).Error)
	require.NoError(t, db.Create(&models.TokenBalance{UserID: 1, Free: 3, Paid: 10}).Error)
	require.NoError(t, db.Create(&models.AudioJob{ContentItemID: 1, UserID: 1, Status: models.JobPending}).Error)

	// Job A stalls inside the gateway call, holding the lock.
	synthA := &blockingSynth{entered: make(chan struct{}), release: make(chan struct{}), err: errors.New("gateway timeout")}
	wA := New(db, storage.NewMemoryStore(), synthA, testConfig())
	done := make(chan struct{})
	go func() {
		defer close(done)
		wA.Run(context.Background(), Job{JobID: 1, UserID: 1, ContentItemID: 1, Text: "hola"})
	}()
	<-synthA.entered

	// The lock ages past the TTL and the sweeper reaps it.
	require.NoError(t, db.Model(&models.ContentItem{}).
		Where("id = ?", 1).
		UpdateColumn("updated_at", time.Now().Add(-time.Hour)).Error)
	NewSweeper(db, 15*time.Minute).Run(context.Background())

	// A resubmitted job B completes while A is still stalled.
	require.NoError(t, db.Create(&models.AudioJob{ContentItemID: 1, UserID: 1, Status: models.JobPending}).Error)
	wB := New(db, storage.NewMemoryStore(), &fakeSynth{result: &tts.Result{Audio: []byte("x"), Format: "mp3"}}, testConfig())
	wB.Run(context.Background(), Job{JobID: 2, UserID: 1, ContentItemID: 1, Text: "hola"})

	var item models.ContentItem
	require.NoError(t, db.First(&item, 1).Error)
	state, linkedUID := item.AudioState()
	require.Equal(t, models.AudioReady, state)

	// A finally fails; its compensation must not touch B's link.
	close(synthA.release)
	<-done

	require.NoError(t, db.First(&item, 1).Error)
	state, gotUID := item.AudioState()
	assert.Equal(t, models.AudioReady, state)
	assert.Equal(t, linkedUID, gotUID)

	var b models.TokenBalance
	require.NoError(t, db.First(&b, "user_id = ?", 1).Error)
	assert.Equal(t, int64(0), b.Free)
	assert.Equal(t, int64(6), b.Paid)
}

func TestWorkerDebitFailureUnlinksOwnUID(t *testing.T) {
	db, store := newWorkerEnv(t)
	// No balance row: the debit's read fails after the artifact is
	// already linked.
	require.NoError(t, db.Create(&models.ContentItem{UserID: 1, Text: "hola"}).Error)
	require.NoError(t, db.Create(&models.AudioJob{ContentItemID: 1, UserID: 1, Status: models.JobPending}).Error)

	synth := &fakeSynth{result: &tts.Result{Audio: []byte("x"), Format: "mp3"}}
	w := New(db, store, synth, testConfig())

	w.Run(context.Background(), Job{JobID: 1, UserID: 1, ContentItemID: 1, Text: "hola"})

	var item models.ContentItem
	require.NoError(t, db.First(&item, 1).Error)
	state, _ := item.AudioState()
	assert.Equal(t, models.AudioEmpty, state)

	var job models.AudioJob
	require.NoError(t, db.First(&job, 1).Error)
	assert.Equal(t, models.JobFailed, job.Status)
}

func TestWorkerPublicACLUsesStableURL(t *testing.T) {
	db, store := newWorkerEnv(t)
	require.NoError(t, db.Create(&models.ContentItem{UserID: 1, Text: "hola"}).Error)
	require.NoError(t, db.Create(&models.TokenBalance{UserID: 1, Free: 10, Paid: 0}).Error)

	synth := &fakeSynth{result: &tts.Result{Audio: []byte("x"), Format: "mp3"}}
	cfg := testConfig()
	cfg.PublicACL = true
	w := New(db, store, synth, cfg)

	w.Run(context.Background(), Job{UserID: 1, ContentItemID: 1, Text: "hola"})

	var item models.ContentItem
	require.NoError(t, db.First(&item, 1).Error)
	_, uid := item.AudioState()
	var audio models.AudioItem
	require.NoError(t, db.First(&audio, "uid = ?", uid).Error)
	assert.Equal(t, store.PublicURL(audio.StorageKey), audio.PublicURL)
	assert.NotContains(t, audio.PublicURL, "expires=")
}
