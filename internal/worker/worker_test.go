package worker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vedalearn/backend/pkg/queue"
)

type fakeEmailer struct {
	sent []string // recipients
}

func (f *fakeEmailer) Send(_ context.Context, recipient, _, _ string) error {
	f.sent = append(f.sent, recipient)
	return nil
}

func emailJob(t *testing.T, payload queue.EmailPayload) *queue.Job {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &queue.Job{ID: uuid.New().String(), Type: queue.JobTypeEmail, Payload: raw}
}

func TestProcessDeliversToRecipient(t *testing.T) {
	emailer := &fakeEmailer{}
	p := NewEmailProcessor(nil, emailer, zap.NewNop())

	job := emailJob(t, queue.EmailPayload{
		EmailType:      "session_started",
		UserID:         uuid.New(),
		RecipientEmail: "asha@vedalearn.app",
		Subject:        "Live session started",
	})
	require.NoError(t, p.Process(context.Background(), job))
	assert.Equal(t, []string{"asha@vedalearn.app"}, emailer.sent)
}

func TestProcessDropsJobWithoutRecipient(t *testing.T) {
	emailer := &fakeEmailer{}
	p := NewEmailProcessor(nil, emailer, zap.NewNop())

	job := emailJob(t, queue.EmailPayload{UserID: uuid.New(), Subject: "no address"})
	require.NoError(t, p.Process(context.Background(), job))
	assert.Empty(t, emailer.sent)
}

func TestProcessRejectsUnknownJobType(t *testing.T) {
	p := NewEmailProcessor(nil, &fakeEmailer{}, zap.NewNop())
	err := p.Process(context.Background(), &queue.Job{ID: "x", Type: "video_transcode"})
	assert.Error(t, err)
}
