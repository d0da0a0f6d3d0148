package pipeline

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jvlmdr/go-cv/rimg64"
	"github.com/kenya-sk/CIP/config"
	"github.com/kenya-sk/CIP/dataset"
	"github.com/kenya-sk/CIP/flow"
	"github.com/kenya-sk/CIP/overlay"
	"github.com/kenya-sk/CIP/stabilize"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCanvas = stabilize.Canvas{Raw: image.Pt(8, 8), Size: image.Pt(16, 16)}

type stillTracker struct{}

func (stillTracker) Track(prev, next image.Image) (stabilize.Tracking, error) {
	tr := stabilize.Tracking{Displacements: make([][3]float64, 60)}
	return tr, nil
}

// constEstimator moves every pixel by the same vector.
type constEstimator struct{ dx, dy float64 }

func (e constEstimator) Estimate(prev, next image.Image) (*rimg64.Multi, error) {
	size := prev.Bounds().Size()
	f := rimg64.NewMulti(size.X, size.Y, 2)
	for x := 0; x < size.X; x++ {
		for y := 0; y < size.Y; y++ {
			f.Set(x, y, 0, e.dx)
			f.Set(x, y, 1, e.dy)
		}
	}
	return f, nil
}

// countingEstimator records the largest number of concurrent calls.
type countingEstimator struct {
	constEstimator
	active, max int32
}

func (e *countingEstimator) Estimate(prev, next image.Image) (*rimg64.Multi, error) {
	n := atomic.AddInt32(&e.active, 1)
	defer atomic.AddInt32(&e.active, -1)
	for {
		m := atomic.LoadInt32(&e.max)
		if n <= m || atomic.CompareAndSwapInt32(&e.max, m, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	return e.constEstimator.Estimate(prev, next)
}

type fakeRecorder struct {
	frames []overlay.Frame
	blank  int
	closed bool
}

func (r *fakeRecorder) Write(fr overlay.Frame) error {
	r.frames = append(r.frames, fr)
	return nil
}

func (r *fakeRecorder) Blank(n int) error {
	r.blank += n
	return nil
}

func (r *fakeRecorder) Close() error {
	r.closed = true
	return nil
}

func memorySource(info dataset.Info) dataset.Memory {
	src := make(dataset.Memory)
	for page := 1; page <= info.PageMax; page++ {
		for t := 1; t <= info.TimeMax; t++ {
			im := image.NewGray(image.Rect(0, 0, 8, 8))
			for x := 0; x < 8; x++ {
				for y := 0; y < 8; y++ {
					im.SetGray(x, y, color.Gray{uint8(30*x + 5*y + t)})
				}
			}
			src[dataset.Key{Time: t, Page: page}] = im
		}
	}
	return src
}

func testConfig(dir string) *config.Config {
	c := config.Default()
	c.BaseDir = dir
	c.OutputVideo = true
	c.Stabilize.DumpPath = filepath.Join(dir, "offsets.csv")
	c.Stabilize.VideoPath = filepath.Join(dir, "stabilized.mp4")
	c.Cumulative.WindowSize = 2
	c.Cumulative.DumpPath = filepath.Join(dir, "cml_{page}.msgpack")
	c.Cumulative.VideoPath = filepath.Join(dir, "cml_{page}.mp4")
	c.Dot.FlowThreshold = 0
	c.Dot.DumpPath = filepath.Join(dir, "dot_{page}.csv")
	c.Dot.VideoPath = filepath.Join(dir, "dot_{page}.mp4")
	c.Detect.OutputPath = filepath.Join(dir, "out", "output{level}.csv")
	return c
}

func newTestPipeline(t *testing.T, info dataset.Info) (*Pipeline, map[string]*fakeRecorder) {
	dir := t.TempDir()
	videos := make(map[string]*fakeRecorder)
	var mu sync.Mutex
	log, _ := test.NewNullLogger()
	p := &Pipeline{
		Config:    testConfig(dir),
		Source:    memorySource(info),
		Info:      info,
		Canvas:    testCanvas,
		Tracker:   stillTracker{},
		Estimator: constEstimator{2, 0},
		Record: func(fname string, size image.Point) (Recorder, error) {
			r := new(fakeRecorder)
			mu.Lock()
			videos[filepath.Base(fname)] = r
			mu.Unlock()
			return r, nil
		},
		Log: log,
	}
	return p, videos
}

func TestRun(t *testing.T) {
	info := dataset.Info{TimeMax: 4, PageMax: 2}
	p, videos := newTestPipeline(t, info)
	require.NoError(t, p.Run(context.Background()))

	o, err := p.LoadOffsets()
	require.NoError(t, err)
	assert.Equal(t, [3]float64{}, o.At(2, 4))

	for page := 1; page <= 2; page++ {
		cml, err := p.loadSeries(p.Config.Path(p.Config.Cumulative.DumpPath, page), 2)
		require.NoError(t, err)
		// Two steps of 2 inside the raw frame.
		assert.Equal(t, 4.0, cml.Fields[2].At(4, 4, 0))
		// Outside the frame.
		assert.Equal(t, 0.0, cml.Fields[2].At(1, 1, 0))
		_, err = p.loadSeries(p.Config.Path(p.Config.Dot.DumpPath, page), 1)
		require.NoError(t, err)
	}

	b, err := os.ReadFile(p.Config.Path(p.Config.Detect.OutputPath, 0))
	require.NoError(t, err)
	assert.Equal(t, "4\n0\n\n", string(b))

	stab := videos["stabilized.mp4"]
	require.NotNil(t, stab)
	assert.Len(t, stab.frames, 8)
	assert.Equal(t, 20, stab.blank)
	assert.True(t, stab.closed)
	assert.Equal(t, "[page: 001 time: 001]", stab.frames[0].Labels[0].Text)
	for _, name := range []string{"cml_1.mp4", "cml_2.mp4", "dot_1.mp4", "dot_2.mp4"} {
		r := videos[name]
		require.NotNil(t, r, name)
		assert.Len(t, r.frames, 3, name)
		assert.True(t, r.closed, name)
	}
	assert.NotEmpty(t, videos["cml_1.mp4"].frames[0].Arrows)
}

func TestRun_videoPage(t *testing.T) {
	info := dataset.Info{TimeMax: 3, PageMax: 2}
	p, videos := newTestPipeline(t, info)
	p.Config.Video.Page = 2
	require.NoError(t, p.Run(context.Background()))
	assert.Len(t, videos["stabilized.mp4"].frames, 3)
	assert.Equal(t, 10, videos["stabilized.mp4"].blank)
	assert.NotContains(t, videos, "cml_1.mp4")
	assert.Contains(t, videos, "cml_2.mp4")
}

func TestRun_noVideo(t *testing.T) {
	info := dataset.Info{TimeMax: 3, PageMax: 1}
	p, videos := newTestPipeline(t, info)
	p.Config.OutputVideo = false
	require.NoError(t, p.Run(context.Background()))
	assert.Empty(t, videos)
}

func TestCumulate_naive(t *testing.T) {
	info := dataset.Info{TimeMax: 6, PageMax: 1}
	p, _ := newTestPipeline(t, info)
	p.Config.OutputVideo = false
	p.Estimator = constEstimator{1, -1}
	o, err := p.Stabilize(context.Background())
	require.NoError(t, err)
	fname := p.Config.Path(p.Config.Cumulative.DumpPath, 1)

	require.NoError(t, p.Cumulate(context.Background(), o, []int{1}))
	fast, err := flow.LoadSeriesExt(fname)
	require.NoError(t, err)
	p.Naive = true
	require.NoError(t, p.Cumulate(context.Background(), o, []int{1}))
	naive, err := flow.LoadSeriesExt(fname)
	require.NoError(t, err)
	for time := range naive.Fields {
		assert.Equal(t, naive.Fields[time].Elems, fast.Fields[time].Elems, "time %d", time)
	}
}

func TestDot_load(t *testing.T) {
	info := dataset.Info{TimeMax: 3, PageMax: 1}
	p, _ := newTestPipeline(t, info)
	p.Config.OutputVideo = false
	ctx := context.Background()
	o, err := p.Stabilize(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Cumulate(ctx, o, []int{1}))
	require.NoError(t, p.Dot(ctx, o, []int{1}))
	// Without recalculation the cumulative flow is not needed.
	require.NoError(t, os.Remove(p.Config.Path(p.Config.Cumulative.DumpPath, 1)))
	p.Config.Dot.Recalculate = false
	require.NoError(t, p.Dot(ctx, o, []int{1}))
	p.Config.Dot.Recalculate = true
	assert.Error(t, p.Dot(ctx, o, []int{1}))
}

func TestDetect(t *testing.T) {
	info := dataset.Info{TimeMax: 20, PageMax: 1}
	p, _ := newTestPipeline(t, info)
	c := &p.Config.Detect
	c.Eps = 0.1
	c.MinSamples = 5
	c.Stride = 1
	// Block of 4x4 pixels with a low score from time 2 to 15.
	score := flow.NewSeries(info.TimeMax, 16, 16, 1)
	for time := 2; time <= 15; time++ {
		for x := 6; x < 10; x++ {
			for y := 6; y < 10; y++ {
				score.Fields[time].Set(x, y, 0, -20)
			}
		}
	}
	require.NoError(t, flow.SaveSeriesExt(p.Config.Path(p.Config.Dot.DumpPath, 1), score))
	o := stabilize.NewOffsets(info.PageMax, info.TimeMax)
	require.NoError(t, p.Detect(context.Background(), o))

	b, err := os.ReadFile(p.Config.Path(c.OutputPath, 0))
	require.NoError(t, err)
	lines := strings.Split(string(b), "\n")
	assert.Equal(t, []string{"20", "1", ""}, lines[:3])
	rows := lines[3 : 3+info.TimeMax]
	assert.Equal(t, "-1\t-1\t-1\t-1\t-1\t-1", rows[0])
	for time := 2; time < 15; time++ {
		assert.Equal(t, "0\t0\t0\t8\t8\t1", rows[time-1], "time %d", time)
	}
	assert.Equal(t, "-1\t-1\t-1\t-1\t-1\t-1", rows[14])
}

func TestPages(t *testing.T) {
	p := &Pipeline{Info: dataset.Info{TimeMax: 3, PageMax: 3}}
	pages, err := p.Pages(0)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, pages)
	pages, err = p.Pages(2)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, pages)
	_, err = p.Pages(4)
	assert.Error(t, err)
}

func TestLoadOffsets_mismatch(t *testing.T) {
	info := dataset.Info{TimeMax: 3, PageMax: 1}
	p, _ := newTestPipeline(t, info)
	p.Config.OutputVideo = false
	_, err := p.Stabilize(context.Background())
	require.NoError(t, err)
	p.Info.TimeMax = 4
	_, err = p.LoadOffsets()
	assert.Error(t, err)
}

func TestStabilize_missingFrame(t *testing.T) {
	info := dataset.Info{TimeMax: 3, PageMax: 1}
	p, _ := newTestPipeline(t, info)
	delete(p.Source.(dataset.Memory), dataset.Key{Time: 2, Page: 1})
	_, err := p.Stabilize(context.Background())
	assert.Error(t, err)
}

func TestCumulate_workers(t *testing.T) {
	info := dataset.Info{TimeMax: 3, PageMax: 4}
	pages := []int{1, 2, 3, 4}
	for _, workers := range []int{1, 2, 0} {
		p, _ := newTestPipeline(t, info)
		p.Config.OutputVideo = false
		p.Config.Workers = workers
		est := &countingEstimator{constEstimator: constEstimator{1, 0}}
		p.Estimator = est
		o := stabilize.NewOffsets(info.PageMax, info.TimeMax)
		require.NoError(t, p.Cumulate(context.Background(), o, pages))
		limit := workers
		if limit <= 0 {
			limit = runtime.GOMAXPROCS(0)
		}
		assert.GreaterOrEqual(t, est.max, int32(1), "workers %d", workers)
		assert.LessOrEqual(t, est.max, int32(limit), "workers %d", workers)
	}
}

func TestWorkerLimit(t *testing.T) {
	assert.Equal(t, runtime.GOMAXPROCS(0), workerLimit(0))
	assert.Equal(t, runtime.GOMAXPROCS(0), workerLimit(-3))
	assert.Equal(t, 5, workerLimit(5))
}

func TestCumulate_arrows(t *testing.T) {
	info := dataset.Info{TimeMax: 4, PageMax: 1}
	p, videos := newTestPipeline(t, info)
	o := stabilize.NewOffsets(info.PageMax, info.TimeMax)
	require.NoError(t, p.Cumulate(context.Background(), o, []int{1}))
	cml, err := p.loadSeries(p.Config.Path(p.Config.Cumulative.DumpPath, 1), 2)
	require.NoError(t, err)
	r := videos["cml_1.mp4"]
	require.NotNil(t, r)
	require.Len(t, r.frames, 3)
	for i, fr := range r.frames {
		assert.Equal(t, overlay.Arrows(cml.Fields[i+2], ArrowStep), fr.Arrows, "time %d", i+2)
	}
}

func TestRun_frameSize(t *testing.T) {
	info := dataset.Info{TimeMax: 2, PageMax: 1}
	p, _ := newTestPipeline(t, info)
	dir := &dataset.Dir{Base: t.TempDir(), Prefix: "Pre_Data", Level: 1}
	fname := dir.Path(1, 1)
	require.NoError(t, os.MkdirAll(filepath.Dir(fname), 0o755))
	file, err := os.Create(fname)
	require.NoError(t, err)
	require.NoError(t, png.Encode(file, image.NewGray(image.Rect(0, 0, 5, 8))))
	require.NoError(t, file.Close())
	p.Source = dir

	err = p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame size")
	_, err = os.Stat(p.Config.Stabilize.DumpPath)
	assert.True(t, os.IsNotExist(err), "stabilization ran")

	// Memory sources are not checked.
	p.Source = memorySource(info)
	assert.NoError(t, p.CheckFrameSize())
}
