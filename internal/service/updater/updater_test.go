package updater

import (
	"bytes"
	"context"
	"crypto"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/oshokin/server-updater/internal/domain/update"
	"github.com/oshokin/server-updater/internal/provider"
	"github.com/oshokin/server-updater/internal/provider/jenkins"
	"github.com/oshokin/server-updater/internal/provider/mocks"
	"github.com/oshokin/server-updater/internal/repository/checksum"
	"github.com/oshokin/server-updater/internal/service/common"
)

var errBoom = errors.New("boom")

// countingConstructor wraps a provider into a constructor that counts invocations.
func countingConstructor(p provider.Provider, calls *atomic.Int32) provider.Constructor {
	return func(context.Context, provider.Request) (provider.Provider, error) {
		calls.Add(1)
		return p, nil
	}
}

func newRegistry(constructor provider.Constructor, names ...string) *provider.Registry {
	registry := provider.NewRegistry()
	registry.Register(constructor, names...)

	return registry
}

func newUpdater(t *testing.T, registry Registry, project string, opts ...Option) *Updater {
	t.Helper()

	cfg, err := NewConfig(project, opts...)
	require.NoError(t, err)

	u, err := New(registry, cfg)
	require.NoError(t, err)

	return u
}

func artifactOf(contents string) *provider.Artifact {
	return &provider.Artifact{
		Name: "server.jar",
		Size: int64(len(contents)),
		Body: io.NopCloser(strings.NewReader(contents)),
	}
}

func writeTarget(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "server.jar")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	return path
}

func readTarget(t *testing.T, path string) string {
	t.Helper()

	contents, err := os.ReadFile(path)
	require.NoError(t, err)

	return string(contents)
}

// TestRun_NoProvider verifies unregistered names end the run before any other work.
func TestRun_NoProvider(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	output := filepath.Join(t.TempDir(), "server.jar")
	registry := newRegistry(countingConstructor(nil, &calls), "paper")

	for _, opts := range [][]Option{
		nil,
		{WithOutputFile(output)},
		{WithOutputFile(output), WithCheckOnly(true), WithVersion("1.20.4")},
	} {
		outcome := newUpdater(t, registry, "spigot", opts...).Run(context.Background())
		require.Equal(t, update.NoProvider, outcome.Status)
		require.True(t, outcome.IsError())
	}

	require.Zero(t, calls.Load())
	require.NoFileExists(t, output)
}

// TestRun_LookupIsCaseInsensitive verifies that every casing reaches the same constructor.
func TestRun_LookupIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	registry := newRegistry(func(context.Context, provider.Request) (provider.Provider, error) {
		calls.Add(1)
		return nil, errBoom
	}, "paper")

	for _, name := range []string{"Paper", "PAPER", "paper"} {
		output := filepath.Join(t.TempDir(), "server.jar")

		outcome := newUpdater(t, registry, name, WithOutputFile(output)).Run(context.Background())
		require.Equal(t, update.UnknownError, outcome.Status, name)
		require.ErrorIs(t, outcome.Err, errBoom)
	}

	require.Equal(t, int32(3), calls.Load())
}

// TestRun_UpToDateSkipsFetch feeds the current token back as the stored one.
func TestRun_UpToDateSkipsFetch(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	checksummer := mocks.NewMockChecksummer(ctrl)
	p := mocks.NewMockProvider(ctrl)

	p.EXPECT().Checksummer().Return(checksummer, true)
	checksummer.EXPECT().Checksum(gomock.Any()).Return("1.20||42", nil)

	output := writeTarget(t, "installed")

	outcome := newUpdater(t, newRegistry(countingConstructor(p, new(atomic.Int32)), "paper"), "paper",
		WithOutputFile(output),
		WithChecksumStore(checksum.NewMemoryStore("1.20||42")),
	).Run(context.Background())

	require.Equal(t, update.UpToDate, outcome.Status)
	require.False(t, outcome.IsError())
	require.Equal(t, "installed", readTarget(t, output))
}

// TestRun_CheckOnlyDoesNotMutate verifies a changed upstream yields OutOfDate without writes.
func TestRun_CheckOnlyDoesNotMutate(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	checksummer := mocks.NewMockChecksummer(ctrl)
	p := mocks.NewMockProvider(ctrl)

	p.EXPECT().Checksummer().Return(checksummer, true)
	checksummer.EXPECT().Checksum(gomock.Any()).Return("1.20||43", nil)

	output := writeTarget(t, "installed")
	store := checksum.NewMemoryStore("1.20||42")

	outcome := newUpdater(t, newRegistry(countingConstructor(p, new(atomic.Int32)), "paper"), "paper",
		WithOutputFile(output),
		WithChecksumStore(store),
		WithCheckOnly(true),
	).Run(context.Background())

	require.Equal(t, update.OutOfDate, outcome.Status)
	require.Equal(t, "installed", readTarget(t, output))

	token, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "1.20||42", token)
}

// TestRun_CheckOnlyMissingTarget verifies nothing is created or resolved for a missing target.
func TestRun_CheckOnlyMissingTarget(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	output := filepath.Join(t.TempDir(), "server.jar")

	outcome := newUpdater(t, newRegistry(countingConstructor(nil, &calls), "paper"), "paper",
		WithOutputFile(output),
		WithCheckOnly(true),
	).Run(context.Background())

	require.Equal(t, update.OutOfDate, outcome.Status)
	require.NoFileExists(t, output)
	require.Zero(t, calls.Load())
}

// TestRun_FileCreateFailed verifies that an uncreatable target stops the run before any network call.
func TestRun_FileCreateFailed(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	constructor, err := jenkins.Project{BaseURL: ts.URL, Job: []string{"X"}, Artifact: `x\.jar`}.Constructor()
	require.NoError(t, err)

	// The parent of the target is a regular file.
	parent := writeTarget(t, "not a directory")

	outcome := newUpdater(t, newRegistry(constructor, "x"), "x",
		WithOutputFile(filepath.Join(parent, "server.jar")),
		WithHTTPClient(ts.Client()),
	).Run(context.Background())

	require.Equal(t, update.FileCreateFailed, outcome.Status)
	require.Error(t, outcome.Err)
	require.Zero(t, requests.Load())
}

// TestRun_FetchFailureIsFailed verifies transfer errors map to Failed and clean up the placeholder.
func TestRun_FetchFailureIsFailed(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	checksummer := mocks.NewMockChecksummer(ctrl)
	p := mocks.NewMockProvider(ctrl)

	p.EXPECT().Checksummer().Return(checksummer, true)
	checksummer.EXPECT().Checksum(gomock.Any()).Return("token", nil)
	p.EXPECT().Fetch(gomock.Any()).Return(nil, errBoom)

	output := filepath.Join(t.TempDir(), "server.jar")
	store := checksum.NewMemoryStore("")

	outcome := newUpdater(t, newRegistry(countingConstructor(p, new(atomic.Int32)), "paper"), "paper",
		WithOutputFile(output),
		WithChecksumStore(store),
	).Run(context.Background())

	require.Equal(t, update.Failed, outcome.Status)
	require.ErrorIs(t, outcome.Err, errBoom)
	require.NoFileExists(t, output)

	token, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, token)
}

// TestRun_WithoutChecksumAlwaysDownloads verifies providers without the token capability.
func TestRun_WithoutChecksumAlwaysDownloads(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	p := mocks.NewMockProvider(ctrl)

	p.EXPECT().Checksummer().Return(nil, false).Times(2)
	p.EXPECT().Verifier().Return(nil, false).Times(2)
	p.EXPECT().Fetch(gomock.Any()).Return(artifactOf("v1"), nil)
	p.EXPECT().Fetch(gomock.Any()).Return(artifactOf("v2"), nil)

	output := writeTarget(t, "v0")

	var saves atomic.Int32

	u := newUpdater(t, newRegistry(countingConstructor(p, new(atomic.Int32)), "paper"), "paper",
		WithOutputFile(output),
		WithChecksumSaver(func(context.Context, string) error {
			saves.Add(1)
			return nil
		}),
	)

	require.Equal(t, update.Success, u.Run(context.Background()).Status)
	require.Equal(t, "v1", readTarget(t, output))

	require.Equal(t, update.Success, u.Run(context.Background()).Status)
	require.Equal(t, "v2", readTarget(t, output))

	require.Zero(t, saves.Load())
}

// TestRun_VerifierDigest verifies that downloads are checked against the provider digest.
func TestRun_VerifierDigest(t *testing.T) {
	t.Parallel()

	good := sha256.Sum256([]byte("verified"))

	cases := map[string]struct {
		body   string
		status update.Status
		want   string
	}{
		"match":    {body: "verified", status: update.Success, want: "verified"},
		"mismatch": {body: "tampered", status: update.Failed, want: "old"},
	}

	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			p := mocks.NewMockProvider(ctrl)
			verifier := mocks.NewMockVerifier(ctrl)

			p.EXPECT().Checksummer().Return(nil, false)
			p.EXPECT().Verifier().Return(verifier, true)
			p.EXPECT().Fetch(gomock.Any()).Return(artifactOf(tc.body), nil)
			verifier.EXPECT().Digest(gomock.Any()).Return(&provider.Digest{Hash: crypto.SHA256, Sum: good[:]}, nil)

			output := writeTarget(t, "old")

			outcome := newUpdater(t, newRegistry(countingConstructor(p, new(atomic.Int32)), "paper"), "paper",
				WithOutputFile(output),
			).Run(context.Background())

			require.Equal(t, tc.status, outcome.Status)
			require.Equal(t, tc.want, readTarget(t, output))
		})
	}
}

// TestRun_SaveFailureIsUnknownError verifies token persistence failures after a write.
func TestRun_SaveFailureIsUnknownError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	checksummer := mocks.NewMockChecksummer(ctrl)
	p := mocks.NewMockProvider(ctrl)

	p.EXPECT().Checksummer().Return(checksummer, true)
	p.EXPECT().Verifier().Return(nil, false)
	checksummer.EXPECT().Checksum(gomock.Any()).Return("token", nil)
	p.EXPECT().Fetch(gomock.Any()).Return(artifactOf("new"), nil)

	output := filepath.Join(t.TempDir(), "server.jar")

	outcome := newUpdater(t, newRegistry(countingConstructor(p, new(atomic.Int32)), "paper"), "paper",
		WithOutputFile(output),
		WithChecksumSaver(func(context.Context, string) error { return errBoom }),
	).Run(context.Background())

	require.Equal(t, update.UnknownError, outcome.Status)
	require.ErrorIs(t, outcome.Err, errBoom)
	// The new target stays in place.
	require.Equal(t, "new", readTarget(t, output))
}

// TestRun_ChecksumErrorsAreUnknown covers token computation and load failures.
func TestRun_ChecksumErrorsAreUnknown(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	checksummer := mocks.NewMockChecksummer(ctrl)
	p := mocks.NewMockProvider(ctrl)

	p.EXPECT().Checksummer().Return(checksummer, true).Times(2)
	checksummer.EXPECT().Checksum(gomock.Any()).Return("", errBoom)
	checksummer.EXPECT().Checksum(gomock.Any()).Return("token", nil)

	registry := newRegistry(countingConstructor(p, new(atomic.Int32)), "paper")
	output := writeTarget(t, "old")

	outcome := newUpdater(t, registry, "paper", WithOutputFile(output)).Run(context.Background())
	require.Equal(t, update.UnknownError, outcome.Status)
	require.ErrorIs(t, outcome.Err, errBoom)

	outcome = newUpdater(t, registry, "paper",
		WithOutputFile(output),
		WithChecksumLoader(func(context.Context) (string, error) { return "", errBoom }),
	).Run(context.Background())
	require.Equal(t, update.UnknownError, outcome.Status)
	require.ErrorIs(t, outcome.Err, errBoom)
	require.Equal(t, "old", readTarget(t, output))
}

// TestRun_PanicIsRecovered verifies that a panicking provider cannot escape the run.
func TestRun_PanicIsRecovered(t *testing.T) {
	t.Parallel()

	registry := newRegistry(func(context.Context, provider.Request) (provider.Provider, error) {
		panic("unexpected")
	}, "paper")

	output := filepath.Join(t.TempDir(), "server.jar")

	outcome := newUpdater(t, registry, "paper", WithOutputFile(output)).Run(context.Background())
	require.Equal(t, update.UnknownError, outcome.Status)
	require.ErrorIs(t, outcome.Err, errPanic)
	require.NoFileExists(t, output)
}

// TestRunAsync delivers exactly one outcome and closes the channel.
func TestRunAsync(t *testing.T) {
	t.Parallel()

	u := newUpdater(t, provider.NewRegistry(), "paper")

	result := u.RunAsync(context.Background())

	outcome, ok := <-result
	require.True(t, ok)
	require.Equal(t, update.NoProvider, outcome.Status)

	_, ok = <-result
	require.False(t, ok)
}

// TestRun_ProgressObservesStream verifies the progress writer sees every byte.
func TestRun_ProgressObservesStream(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	p := mocks.NewMockProvider(ctrl)

	p.EXPECT().Checksummer().Return(nil, false)
	p.EXPECT().Verifier().Return(nil, false)
	p.EXPECT().Fetch(gomock.Any()).Return(artifactOf("0123456789"), nil)

	var (
		progress bytes.Buffer
		total    int64
		lines    []string
	)

	output := filepath.Join(t.TempDir(), "server.jar")

	outcome := newUpdater(t, newRegistry(countingConstructor(p, new(atomic.Int32)), "paper"), "paper",
		WithOutputFile(output),
		WithProgress(func(size int64) io.Writer {
			total = size
			return &progress
		}),
		WithDebug(func(message string) {
			lines = append(lines, message)
		}),
	).Run(context.Background())

	require.Equal(t, update.Success, outcome.Status)
	require.Equal(t, int64(10), total)
	require.Equal(t, "0123456789", progress.String())
	require.Contains(t, lines, "Creating placeholder "+output)
}

// jenkinsServer serves one job with a single successful build and counts artifact downloads.
type jenkinsServer struct {
	build     atomic.Int32
	downloads atomic.Int32

	// chunkDelay, when set, streams the artifact one byte at a time.
	chunkDelay time.Duration
}

func (s *jenkinsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	build := s.build.Load()
	buildPath := fmt.Sprintf("/job/Server/%d/", build)

	switch r.URL.Path {
	case "/job/Server/api/json":
		_, _ = fmt.Fprintf(w, `{"lastSuccessfulBuild":{"number":%d}}`, build)
	case buildPath + "api/json":
		_, _ = io.WriteString(w, `{"artifacts":[
			{"fileName":"server-sources.jar","relativePath":"target/server-sources.jar"},
			{"fileName":"server.jar","relativePath":"target/server.jar"}
		]}`)
	case buildPath + "artifact/target/server.jar":
		s.downloads.Add(1)

		body := fmt.Sprintf("build-%d", build)
		if s.chunkDelay <= 0 {
			_, _ = io.WriteString(w, body)
			return
		}

		flusher, _ := w.(http.Flusher)

		for i := 0; i < len(body); i++ {
			_, _ = io.WriteString(w, body[i:i+1])

			if flusher != nil {
				flusher.Flush()
			}

			time.Sleep(s.chunkDelay)
		}
	default:
		http.NotFound(w, r)
	}
}

// TestRun_JenkinsIdempotence runs the full pipeline twice against an unchanged upstream,
// then once more after a new build.
func TestRun_JenkinsIdempotence(t *testing.T) {
	t.Parallel()

	server := new(jenkinsServer)
	server.build.Store(7)

	ts := httptest.NewServer(server)
	defer ts.Close()

	constructor, err := jenkins.Project{
		BaseURL:        ts.URL,
		Job:            []string{"Server"},
		Artifact:       `server\.jar`,
		DefaultVersion: "latest",
	}.Constructor()
	require.NoError(t, err)

	dir := t.TempDir()
	output := filepath.Join(dir, "server.jar")

	u := newUpdater(t, newRegistry(constructor, "server"), "Server",
		WithOutputFile(output),
		WithWorkingDirectory(dir),
		WithChecksumFile("server.jar.checksum"),
		WithHTTPClient(ts.Client()),
	)
	require.Equal(t, filepath.Join(dir, "server.jar.checksum"), u.Config().ChecksumPath())

	require.Equal(t, update.Success, u.Run(context.Background()).Status)
	require.Equal(t, "build-7", readTarget(t, output))

	token, err := os.ReadFile(filepath.Join(dir, "server.jar.checksum"))
	require.NoError(t, err)
	require.Equal(t, "latest||7||Server||"+ts.URL+"/", string(token))

	require.Equal(t, update.UpToDate, u.Run(context.Background()).Status)
	require.Equal(t, int32(1), server.downloads.Load())

	server.build.Store(8)

	require.Equal(t, update.Success, u.Run(context.Background()).Status)
	require.Equal(t, "build-8", readTarget(t, output))
	require.Equal(t, int32(2), server.downloads.Load())
}

// TestRun_SlowDownloadOutlivesRequestTimeout verifies that the request timeout
// does not cut off an artifact that keeps streaming.
func TestRun_SlowDownloadOutlivesRequestTimeout(t *testing.T) {
	t.Parallel()

	server := &jenkinsServer{chunkDelay: 60 * time.Millisecond}
	server.build.Store(3)

	ts := httptest.NewServer(server)
	defer ts.Close()

	constructor, err := jenkins.Project{
		BaseURL:  ts.URL,
		Job:      []string{"Server"},
		Artifact: `server\.jar`,
	}.Constructor()
	require.NoError(t, err)

	dir := t.TempDir()
	output := filepath.Join(dir, "server.jar")

	outcome := newUpdater(t, newRegistry(constructor, "server"), "server",
		WithOutputFile(output),
		WithWorkingDirectory(dir),
		WithHTTPClient(common.NewHTTPClient(context.Background(), 150*time.Millisecond, common.WithRetryMax(0))),
	).Run(context.Background())

	require.NoError(t, outcome.Err)
	require.Equal(t, update.Success, outcome.Status)
	require.Equal(t, "build-3", readTarget(t, output))
}

// TestNewConfig validates defaults and checksum strategy precedence.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	_, err := NewConfig("  ")
	require.ErrorIs(t, err, errProjectRequired)

	cfg, err := NewConfig("paper")
	require.NoError(t, err)
	require.Equal(t, "server.jar", cfg.OutputFile())
	require.True(t, cfg.Query().Latest)
	require.Empty(t, cfg.ChecksumPath())

	token, err := cfg.loadChecksum(context.Background())
	require.NoError(t, err)
	require.Empty(t, token)

	// The checksum file is resolved after every option, whatever their order.
	dir := t.TempDir()
	cfg, err = NewConfig("paper", WithChecksumFile("a.checksum"), WithWorkingDirectory(dir), WithVersion("1.20.4"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "a.checksum"), cfg.ChecksumPath())
	require.Equal(t, update.VersionQuery{Version: "1.20.4"}, cfg.Query())

	absolute := filepath.Join(t.TempDir(), "b.checksum")
	cfg, err = NewConfig("paper", WithWorkingDirectory(dir), WithChecksumFile(absolute))
	require.NoError(t, err)
	require.Equal(t, absolute, cfg.ChecksumPath())

	// Explicit loaders win over the file.
	cfg, err = NewConfig("paper",
		WithChecksumFile(absolute),
		WithChecksumLoader(func(context.Context) (string, error) { return "explicit", nil }),
	)
	require.NoError(t, err)

	token, err = cfg.loadChecksum(context.Background())
	require.NoError(t, err)
	require.Equal(t, "explicit", token)

	require.NoError(t, cfg.saveChecksum(context.Background(), "saved"))

	contents, err := os.ReadFile(absolute)
	require.NoError(t, err)
	require.Equal(t, "saved", string(contents))

	_, err = New(nil, cfg)
	require.ErrorIs(t, err, errRegistryRequired)

	_, err = New(provider.NewRegistry(), nil)
	require.ErrorIs(t, err, errConfigRequired)
}
