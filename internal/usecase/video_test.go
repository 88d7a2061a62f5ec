package usecase

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"selfintro-bot/internal/domain"
	"selfintro-bot/internal/integrations/did"
)

var manProfile = domain.AvatarProfile{ImageKey: "images/generated_image_anime_man.png", VoiceID: "ja-JP-KeitaNeural"}

func TestResolve_CatalogAndUpload(t *testing.T) {
	r := newTestRig(t)

	p, err := r.video.Resolve(domain.AvatarSelection{Token: "動物"})
	require.NoError(t, err)
	require.Equal(t, "images/generated_image_neko.png", p.ImageKey)
	require.Equal(t, "ja-JP-AoiNeural", p.VoiceID)

	_, err = r.video.Resolve(domain.AvatarSelection{Token: "猫"})
	require.Equal(t, ErrorUnknownAvatarType, CodeOf(err))

	p, err = r.video.Resolve(domain.AvatarSelection{ImageKey: "uploads/U1/a.jpg"})
	require.NoError(t, err)
	require.Equal(t, domain.AvatarProfile{ImageKey: "uploads/U1/a.jpg", VoiceID: defaultVoiceID}, p)
}

func TestSynthesize_PollsUntilDone(t *testing.T) {
	r := newTestRig(t)
	r.talks.jobs = []domain.VideoJob{{Status: "created"}, {Status: "started"}, doneJob()}

	res, err := r.video.Synthesize(context.Background(), "台本", manProfile)
	require.NoError(t, err)
	require.Equal(t, 3, r.talks.gets)
	require.Equal(t, 2, r.sleeps)
	require.Equal(t, domain.VideoResult{
		Introduction: "台本",
		VideoURL:     "https://cdn.example/result.mp4",
		PreviewURL:   "https://cdn.example/thumb.jpg",
		JobID:        "tlk_1",
	}, res)

	require.Len(t, r.talks.created, 1)
	sent := r.talks.created[0]
	require.Equal(t, "台本", sent.Script)
	require.Equal(t, "ja-JP-KeitaNeural", sent.VoiceID)
	require.Equal(t, "https://bucket.example/images/generated_image_anime_man.png?sig=1", sent.SourceURL)
	require.Contains(t, sent.Name, "selfintro-")
}

func TestSynthesize_ErrorStatusStopsImmediately(t *testing.T) {
	r := newTestRig(t)
	r.talks.jobs = []domain.VideoJob{{Status: domain.JobStatusError, Raw: `{"status":"error","error":{"kind":"FaceError"}}`}, doneJob()}

	_, err := r.video.Synthesize(context.Background(), "台本", manProfile)
	require.Equal(t, ErrorSynthesis, CodeOf(err))
	require.ErrorContains(t, err, "FaceError")
	require.Equal(t, 1, r.talks.gets)
	require.Zero(t, r.sleeps)
}

func TestSynthesize_RejectedIsSynthesisError(t *testing.T) {
	r := newTestRig(t)
	r.talks.jobs = []domain.VideoJob{{Status: "started"}, {Status: domain.JobStatusRejected}}

	_, err := r.video.Synthesize(context.Background(), "台本", manProfile)
	require.Equal(t, ErrorSynthesis, CodeOf(err))
	require.Equal(t, 2, r.talks.gets)
}

func TestSynthesize_DoneWithoutURL(t *testing.T) {
	r := newTestRig(t)
	r.talks.jobs = []domain.VideoJob{{Status: domain.JobStatusDone}}

	_, err := r.video.Synthesize(context.Background(), "台本", manProfile)
	require.Equal(t, ErrorMissingResultURL, CodeOf(err))
}

func TestSynthesize_StatusHTTPErrorIsSynthesisError(t *testing.T) {
	r := newTestRig(t)
	r.talks.getErr = &did.HTTPStatusError{StatusCode: http.StatusInternalServerError, Body: "oops"}

	_, err := r.video.Synthesize(context.Background(), "台本", manProfile)
	require.Equal(t, ErrorSynthesis, CodeOf(err))
	status, ok := upstreamStatusCode(err)
	require.True(t, ok)
	require.Equal(t, http.StatusInternalServerError, status)
}

func TestSynthesize_MaxAttempts(t *testing.T) {
	r := newTestRig(t)
	r.video.opts.PollMaxAttempts = 4
	r.talks.jobs = []domain.VideoJob{{Status: "started"}}

	_, err := r.video.Synthesize(context.Background(), "台本", manProfile)
	require.Equal(t, ErrorPollTimeout, CodeOf(err))
	require.Equal(t, 4, r.talks.gets)
	require.Equal(t, 3, r.sleeps)
}

func TestSynthesize_DeadlineIsPollTimeout(t *testing.T) {
	r := newTestRig(t)
	r.talks.jobs = []domain.VideoJob{{Status: "started"}}
	r.video.sleep = sleepContext
	r.video.opts.PollInterval = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.video.Synthesize(ctx, "台本", manProfile)
	require.Equal(t, ErrorPollTimeout, CodeOf(err))
	require.Equal(t, 1, r.talks.gets)
}

func TestSynthesize_SourceAssetUnavailable(t *testing.T) {
	r := newTestRig(t)
	r.objects.presignErr = errBoom
	_, err := r.video.Synthesize(context.Background(), "台本", manProfile)
	require.Equal(t, ErrorSourceAssetUnavailable, CodeOf(err))

	r = newTestRig(t)
	r.objects.emptyURL = true
	_, err = r.video.Synthesize(context.Background(), "台本", manProfile)
	require.Equal(t, ErrorSourceAssetUnavailable, CodeOf(err))
	require.Empty(t, r.talks.created)
}

func TestSynthesize_SubmissionFailure(t *testing.T) {
	r := newTestRig(t)
	r.talks.createErr = &did.HTTPStatusError{StatusCode: http.StatusBadRequest, Body: "bad"}

	_, err := r.video.Synthesize(context.Background(), "台本", manProfile)
	require.Equal(t, ErrorJobSubmission, CodeOf(err))
	require.Zero(t, r.talks.gets)
}

func TestSynthesize_PreviewFallsBackToSourceImage(t *testing.T) {
	r := newTestRig(t)
	r.talks.jobs = []domain.VideoJob{{Status: domain.JobStatusDone, ResultURL: "https://cdn.example/r.mp4"}}

	res, err := r.video.Synthesize(context.Background(), "台本", manProfile)
	require.NoError(t, err)
	require.Equal(t, "https://bucket.example/images/generated_image_anime_man.png?sig=1", res.PreviewURL)
}

func TestSynthesize_MirrorCopiesResult(t *testing.T) {
	r := newTestRig(t)
	r.video.opts.Mirror = true
	r.talks.download = "mp4-bytes"

	res, err := r.video.Synthesize(context.Background(), "台本", manProfile)
	require.NoError(t, err)
	require.Equal(t, "https://bucket.example/movies/tlk_1.mp4?sig=1", res.VideoURL)
	require.Equal(t, []byte("mp4-bytes"), r.objects.uploads["movies/tlk_1.mp4"])

	entries, err := os.ReadDir(r.video.opts.TempDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestSynthesize_MirrorFailureKeepsProviderURL(t *testing.T) {
	r := newTestRig(t)
	r.video.opts.Mirror = true
	r.talks.downloadErr = errBoom

	res, err := r.video.Synthesize(context.Background(), "台本", manProfile)
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example/result.mp4", res.VideoURL)
}

func TestNewVideoSynthesizer_Defaults(t *testing.T) {
	r := newTestRig(t)
	v, err := NewVideoSynthesizer(r.talks, r.objects, r.video.avatars, VideoOptions{}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, defaultPollInterval, v.opts.PollInterval)
	require.Equal(t, defaultPollMaxAttempts, v.opts.PollMaxAttempts)
	require.Equal(t, defaultPresignTTL, v.opts.PresignTTL)
	require.Equal(t, defaultVoiceID, v.opts.DefaultVoiceID)

	_, err = NewVideoSynthesizer(nil, r.objects, r.video.avatars, VideoOptions{}, nil, nil)
	require.Error(t, err)
}
