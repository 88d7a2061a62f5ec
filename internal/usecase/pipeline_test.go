package usecase

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"selfintro-bot/internal/domain"
	"selfintro-bot/internal/metrics"
)

func TestPipeline_Run(t *testing.T) {
	r := newTestRig(t)
	reg := prometheus.NewRegistry()
	r.pipe.metrics = metrics.NewRecorder(reg)

	res, err := r.pipe.Run(context.Background(), sampleRequest())
	require.NoError(t, err)
	require.Equal(t, "こんにちは、太郎です。", res.Introduction)
	require.Equal(t, "https://cdn.example/result.mp4", res.VideoURL)
	require.Equal(t, "こんにちは、太郎です。", r.talks.created[0].Script)

	n, err := testutil.GatherAndCount(reg, "selfintro_pipeline_runs_total")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestPipeline_UnknownAvatarFailsBeforeNetwork(t *testing.T) {
	r := newTestRig(t)
	req := sampleRequest()
	req.Avatar = domain.AvatarSelection{Token: "猫"}

	_, err := r.pipe.Run(context.Background(), req)
	require.Equal(t, ErrorUnknownAvatarType, CodeOf(err))
	require.Zero(t, r.llm.calls)
	require.Empty(t, r.talks.created)
	require.Empty(t, r.objects.presigned)
}

func TestPipeline_TextFailureSkipsVideo(t *testing.T) {
	r := newTestRig(t)
	r.llm.err = errBoom

	_, err := r.pipe.Run(context.Background(), sampleRequest())
	require.Equal(t, ErrorUpstreamGeneration, CodeOf(err))
	require.Empty(t, r.talks.created)
}

func TestNewPipeline_Validation(t *testing.T) {
	r := newTestRig(t)
	_, err := NewPipeline(nil, r.video, nil, nil)
	require.Error(t, err)
	_, err = NewPipeline(r.text, nil, nil, nil)
	require.Error(t, err)
}
