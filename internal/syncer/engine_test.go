package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roach88/procsync/internal/catalog"
	"github.com/roach88/procsync/internal/compiler"
	"github.com/roach88/procsync/internal/procedure"
	"github.com/roach88/procsync/internal/remote"
	"github.com/roach88/procsync/internal/store"
	"github.com/roach88/procsync/internal/testutil"
)

func outcomeOf(t *testing.T, r *Report, container, script string) procedure.Outcome {
	t.Helper()
	c, ok := r.Container(container)
	require.True(t, ok, "container %s missing from report", container)
	for _, o := range c.Outcomes {
		if o.Script == script {
			return o
		}
	}
	t.Fatalf("no outcome for %s/%s", container, script)
	return procedure.Outcome{}
}

func TestRun_ExistingScriptReplacedNewScriptCreated(t *testing.T) {
	f := newFixture(t, map[string][]string{"orders": {"A", "B"}})
	f.dirs["orders"].Put(procedure.Record{ID: "A", Body: "old"})
	f.compiler.SetOutput("orders", "A", "return 'a';")
	f.compiler.SetOutput("orders", "B", "return 'b';")

	report, err := f.engine().Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	d := f.dirs["orders"]
	require.Len(t, d.Replaces(), 1)
	require.Len(t, d.Creates(), 1)
	assert.Equal(t, procedure.Record{ID: "A", Body: "(args) => {\nreturn 'a';\n}"}, d.Replaces()[0])
	assert.Equal(t, procedure.Record{ID: "B", Body: "(args) => {\nreturn 'b';\n}"}, d.Creates()[0])

	a := outcomeOf(t, report, "orders", "A")
	assert.NoError(t, a.Err)
	assert.Equal(t, procedure.StageDeploy, a.Stage)
	assert.Equal(t, procedure.ActionReplace, a.Action)
	assert.Equal(t, "replaced", a.Status())
	assert.Equal(t, procedure.NewRecord("A", "return 'a';").Digest(), a.Digest)

	b := outcomeOf(t, report, "orders", "B")
	assert.Equal(t, procedure.ActionCreate, b.Action)
	assert.Equal(t, "created", b.Status())

	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, ModeSync, report.Mode)
	assert.False(t, report.Failed())
}

func TestRun_CompileFailureSkipsOnlyThatScript(t *testing.T) {
	f := newFixture(t, map[string][]string{"orders": {"A", "B", "C"}})
	f.compiler.SetFailure("orders", "C", errors.New("unexpected token"))

	report, err := f.engine().Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	c := outcomeOf(t, report, "orders", "C")
	require.Error(t, c.Err)
	assert.True(t, IsCompileError(c.Err))
	assert.Equal(t, procedure.StageCompile, c.Stage)
	assert.Equal(t, "compile failed", c.Status())

	for _, ev := range f.rec.Events() {
		if ev.Op == testutil.OpCreate || ev.Op == testutil.OpReplace {
			assert.NotEqual(t, "C", ev.Script, "remote call issued for failed compile")
		}
	}
	assert.Len(t, f.dirs["orders"].Creates(), 2)

	s := report.Summary()
	assert.Equal(t, 3, s.Scripts)
	assert.Equal(t, 2, s.Compiled)
	assert.Equal(t, 1, s.CompileFailed)
	assert.Equal(t, 2, s.Created)
	assert.Equal(t, 1, s.Failed)
}

func TestRun_SnapshotFollowsEveryCompileAndPrecedesEveryWrite(t *testing.T) {
	tree := map[string][]string{
		"orders":   {"A", "B", "C", "D"},
		"users":    {"E", "F"},
		"payments": {"G"},
	}
	f := newFixture(t, tree)
	f.compiler.SetFailure("users", "F", errors.New("boom"))

	_, err := f.engine().Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	for container := range tree {
		lists := f.rec.Filter(testutil.OpList, container)
		require.Len(t, lists, 1, "container %s listed %d times", container, len(lists))
		listSeq := lists[0].Seq

		settled := f.rec.Filter(testutil.OpCompiled, container)
		require.Len(t, settled, len(tree[container]))
		for _, ev := range settled {
			assert.Less(t, ev.Seq, listSeq, "%s: compile of %s settled after snapshot", container, ev.Script)
		}
		for _, op := range []string{testutil.OpCreate, testutil.OpReplace} {
			for _, ev := range f.rec.Filter(op, container) {
				assert.Greater(t, ev.Seq, listSeq, "%s: %s of %s before snapshot", container, op, ev.Script)
			}
		}
	}
}

func TestRun_ExactlyOneWritePerCompiledScript(t *testing.T) {
	f := newFixture(t, map[string][]string{"orders": {"A", "B", "C", "D", "E"}})
	f.dirs["orders"].Put(procedure.Record{ID: "B"})
	f.dirs["orders"].Put(procedure.Record{ID: "D"})
	f.dirs["orders"].Put(procedure.Record{ID: "Z"})

	_, err := f.engine().Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	calls := map[string][]string{}
	for _, ev := range f.rec.Events() {
		if ev.Op == testutil.OpCreate || ev.Op == testutil.OpReplace {
			calls[ev.Script] = append(calls[ev.Script], ev.Op)
		}
	}
	assert.Equal(t, map[string][]string{
		"A": {testutil.OpCreate},
		"B": {testutil.OpReplace},
		"C": {testutil.OpCreate},
		"D": {testutil.OpReplace},
		"E": {testutil.OpCreate},
	}, calls)
}

func TestRun_SnapshotFailureIsolatesContainer(t *testing.T) {
	f := newFixture(t, map[string][]string{"orders": {"A", "B"}, "users": {"U"}})
	f.dirs["orders"].ListErr = errors.New("503 service unavailable")

	report, err := f.engine().Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	orders, ok := report.Container("orders")
	require.True(t, ok)
	require.Error(t, orders.SnapshotErr)
	assert.True(t, IsSnapshotError(orders.SnapshotErr))
	for _, o := range orders.Outcomes {
		assert.Equal(t, procedure.StageSnapshot, o.Stage)
		assert.True(t, IsSnapshotError(o.Err))
		assert.Equal(t, "skipped", o.Status())
	}
	assert.Empty(t, f.dirs["orders"].Creates())
	assert.Empty(t, f.dirs["orders"].Replaces())

	u := outcomeOf(t, report, "users", "U")
	assert.NoError(t, u.Err)
	assert.Equal(t, procedure.ActionCreate, u.Action)
}

func TestRun_MissingDirectoryFailsSnapshot(t *testing.T) {
	f := newFixture(t, map[string][]string{"orders": {"A"}})
	f.registry = remote.NewRegistry()

	report, err := f.engine().Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	a := outcomeOf(t, report, "orders", "A")
	assert.ErrorIs(t, a.Err, remote.ErrNoDirectory)
	assert.True(t, IsSnapshotError(a.Err))
}

func TestRun_DeployFailureIsolatesScript(t *testing.T) {
	f := newFixture(t, map[string][]string{"orders": {"A", "B"}})
	f.dirs["orders"].Put(procedure.Record{ID: "A"})
	f.dirs["orders"].ReplaceErr["A"] = errors.New("request rate too large")
	f.dirs["orders"].CreateErr["B"] = errors.New("forbidden")

	report, err := f.engine().Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	a := outcomeOf(t, report, "orders", "A")
	assert.True(t, IsDeployError(a.Err))
	var re *remote.RemoteReplaceError
	require.ErrorAs(t, a.Err, &re)
	assert.Equal(t, "orders", re.Container)
	assert.Equal(t, "A", re.Script)
	assert.Equal(t, "deploy failed", a.Status())

	b := outcomeOf(t, report, "orders", "B")
	var ce *remote.RemoteCreateError
	require.ErrorAs(t, b.Err, &ce)
	assert.Equal(t, "B", ce.Script)
}

// racyDirectory lets an outside writer create id right after the listing.
type racyDirectory struct {
	*testutil.FakeDirectory
	id string
}

func (d racyDirectory) ListExisting(ctx context.Context) ([]string, error) {
	ids, err := d.FakeDirectory.ListExisting(ctx)
	d.Put(procedure.Record{ID: d.id, Body: "outside"})
	return ids, err
}

func TestRun_ConcurrentOutsideCreateSurfacesAsConflict(t *testing.T) {
	f := newFixture(t, map[string][]string{"orders": {"A", "B"}})
	f.registry.Register("orders", racyDirectory{FakeDirectory: f.dirs["orders"], id: "B"})

	report, err := f.engine().Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	b := outcomeOf(t, report, "orders", "B")
	require.Error(t, b.Err)
	assert.True(t, remote.IsConflict(b.Err))
	assert.Len(t, f.rec.Filter(testutil.OpCreate, "orders"), 2, "conflict must not be retried")
	assert.Len(t, f.rec.Filter(testutil.OpList, "orders"), 1)

	assert.NoError(t, outcomeOf(t, report, "orders", "A").Err)
}

func TestRun_AmbiguousIdentifier(t *testing.T) {
	f := newFixture(t, map[string][]string{"orders": {"Sync", "Other"}})
	f.dirs["orders"].Put(procedure.Record{ID: "sync"})
	f.dirs["orders"].Put(procedure.Record{ID: "SYNC"})

	report, err := f.engine().Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	s := outcomeOf(t, report, "orders", "Sync")
	assert.True(t, IsAmbiguousID(s.Err))
	assert.Equal(t, procedure.StageClassify, s.Stage)
	assert.Equal(t, "classify failed", s.Status())
	for _, ev := range f.rec.Events() {
		if ev.Op == testutil.OpCreate || ev.Op == testutil.OpReplace {
			assert.NotEqual(t, "Sync", ev.Script)
		}
	}
	assert.NoError(t, outcomeOf(t, report, "orders", "Other").Err)
}

func TestRun_MissingArtifact(t *testing.T) {
	f := newFixture(t, map[string][]string{"orders": {"A", "B"}})
	f.compiler.Skip[testutil.Key("orders", "A")] = true

	report, err := f.engine().Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	a := outcomeOf(t, report, "orders", "A")
	assert.True(t, IsArtifactError(a.Err))
	assert.Equal(t, procedure.StageRead, a.Stage)
	assert.Equal(t, procedure.ActionCreate, a.Action)

	creates := f.dirs["orders"].Creates()
	require.Len(t, creates, 1)
	assert.Equal(t, "B", creates[0].ID)
}

func TestRun_SecondRunReplacesEverything(t *testing.T) {
	f := newFixture(t, map[string][]string{"orders": {"A", "B"}, "users": {"U"}})
	st, err := store.Open(t.TempDir() + "/state.db")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	for _, c := range []string{"orders", "users"} {
		f.registry.Register(c, st.Directory(c))
	}

	e := f.engine()
	first, err := e.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, first.Summary().Created)

	second, err := e.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	s := second.Summary()
	assert.Equal(t, 0, s.Created)
	assert.Equal(t, 3, s.Replaced)
	assert.Equal(t, 0, s.Failed)
	assert.Equal(t, "run-2", second.RunID)

	got, err := st.Directory("orders").Get(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Revision)
	assert.Equal(t, "(args) => {\n// orders/A\n}", got.Body)
}

func TestRun_PlanModeIssuesNoWrites(t *testing.T) {
	f := newFixture(t, map[string][]string{"orders": {"A", "B"}})
	f.dirs["orders"].Put(procedure.Record{ID: "A"})

	report, err := f.engine().Run(context.Background(), RunOptions{Mode: ModePlan})
	require.NoError(t, err)

	assert.Len(t, f.rec.Filter(testutil.OpList, "orders"), 1)
	assert.Empty(t, f.rec.Filter(testutil.OpCreate, ""))
	assert.Empty(t, f.rec.Filter(testutil.OpReplace, ""))

	a := outcomeOf(t, report, "orders", "A")
	assert.Equal(t, procedure.StageClassify, a.Stage)
	assert.Equal(t, procedure.ActionReplace, a.Action)
	assert.Equal(t, "will replace", a.Status())
	assert.Equal(t, "will create", outcomeOf(t, report, "orders", "B").Status())
	assert.Equal(t, 2, report.Summary().Planned)
}

func TestRun_CompileModeNeverContactsRemote(t *testing.T) {
	f := newFixture(t, map[string][]string{"orders": {"A", "B"}})
	f.compiler.SetFailure("orders", "B", errors.New("boom"))

	report, err := f.engine().Run(context.Background(), RunOptions{Mode: ModeCompile})
	require.NoError(t, err)

	assert.Empty(t, f.rec.Filter(testutil.OpList, ""))
	assert.Equal(t, "compiled", outcomeOf(t, report, "orders", "A").Status())
	assert.Equal(t, "compile failed", outcomeOf(t, report, "orders", "B").Status())
}

func TestRun_NothingCompiledSkipsSnapshot(t *testing.T) {
	f := newFixture(t, map[string][]string{"orders": {"A"}})
	f.compiler.SetFailure("orders", "A", errors.New("boom"))

	_, err := f.engine().Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Empty(t, f.rec.Filter(testutil.OpList, ""))
}

func TestRun_ContainerFilter(t *testing.T) {
	f := newFixture(t, map[string][]string{"orders": {"A"}, "users": {"U"}})

	report, err := f.engine().Run(context.Background(), RunOptions{Containers: []string{"users"}})
	require.NoError(t, err)
	require.Len(t, report.Containers, 1)
	assert.Equal(t, "users", report.Containers[0].Name)
	assert.Empty(t, f.rec.Filter(testutil.OpCompile, "orders"))
}

func TestRun_UnknownContainer(t *testing.T) {
	f := newFixture(t, map[string][]string{"orders": {"A"}})

	report, err := f.engine().Run(context.Background(), RunOptions{Containers: []string{"orders", "nope", "also"}})
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, IsUnknownContainer(err))
	var ue *UnknownContainerError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, []string{"also", "nope"}, ue.Names)
	assert.Empty(t, f.rec.Events())
}

func TestRun_DiscoveryErrorIsFatal(t *testing.T) {
	layout := catalog.Layout{ScriptsDir: t.TempDir() + "/missing", OutputDir: t.TempDir(), SourceExts: []string{".ts"}, ArtifactExt: ".js"}
	e := New(catalog.New(layout), testutil.NewFakeCompiler(layout, nil), remote.NewRegistry())

	report, err := e.Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, catalog.IsDiscoveryError(err))
}

func TestRun_UnknownMode(t *testing.T) {
	f := newFixture(t, map[string][]string{"orders": {"A"}})
	_, err := f.engine().Run(context.Background(), RunOptions{Mode: "deploy-everything"})
	assert.Error(t, err)
}

func TestRun_LedgerRecordsEveryOutcome(t *testing.T) {
	f := newFixture(t, map[string][]string{"orders": {"A", "B", "C"}})
	f.compiler.SetFailure("orders", "C", errors.New("boom"))
	st, err := store.Open(t.TempDir() + "/ledger.db")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	report, err := f.engine(WithLedger(st), WithNow(func() time.Time { return start })).Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	entries, err := st.ReadRun(context.Background(), report.RunID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	seqs := map[int64]bool{}
	for _, e := range entries {
		seqs[e.Seq] = true
	}
	assert.Len(t, seqs, 3, "outcome seqs must be distinct")

	run, err := st.GetRun(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, "sync", run.Mode)
	require.NotNil(t, run.FinishedAt)
	assert.True(t, run.StartedAt.Equal(start))
}

type fakeArchiver struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (a *fakeArchiver) Archive(_ context.Context, runID, container string, rec procedure.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = append(a.keys, fmt.Sprintf("%s/%s/%s", runID, container, rec.ID))
	return a.err
}

func TestRun_ArchiveFailureDoesNotChangeOutcome(t *testing.T) {
	f := newFixture(t, map[string][]string{"orders": {"A"}})
	arch := &fakeArchiver{err: errors.New("bucket missing")}

	report, err := f.engine(WithArchiver(arch)).Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.NoError(t, outcomeOf(t, report, "orders", "A").Err)
	assert.Equal(t, []string{"run-1/orders/A"}, arch.keys)
}

func TestRun_PlanModeArchivesNothing(t *testing.T) {
	f := newFixture(t, map[string][]string{"orders": {"A"}})
	arch := &fakeArchiver{}

	_, err := f.engine(WithArchiver(arch)).Run(context.Background(), RunOptions{Mode: ModePlan})
	require.NoError(t, err)
	assert.Empty(t, arch.keys)
}

// gatedCompiler tracks how many compiles run at once.
type gatedCompiler struct {
	*testutil.FakeCompiler
	active, peak atomic.Int32
}

func (c *gatedCompiler) Compile(ctx context.Context, container, script string) error {
	n := c.active.Add(1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	defer c.active.Add(-1)
	return c.FakeCompiler.Compile(ctx, container, script)
}

func TestRun_CompileParallelismLimit(t *testing.T) {
	f := newFixture(t, map[string][]string{"orders": {"A", "B", "C", "D", "E", "F"}})
	gc := &gatedCompiler{FakeCompiler: f.compiler}

	e := New(catalog.New(f.layout), gc, f.registry, WithCompileParallelism(2))
	report, err := e.Run(context.Background(), RunOptions{Mode: ModeCompile})
	require.NoError(t, err)

	assert.LessOrEqual(t, gc.peak.Load(), int32(2))
	assert.Equal(t, 6, report.Summary().Compiled)
}

func TestRun_LogsStatusLines(t *testing.T) {
	f := newFixture(t, map[string][]string{"orders": {"A", "C"}})
	f.compiler.SetFailure("orders", "C", errors.New("boom"))
	core, logs := observer.New(zapcore.DebugLevel)

	_, err := f.engine(WithLogger(zap.New(core))).Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	created := logs.FilterMessage("created").All()
	require.Len(t, created, 1)
	fields := created[0].ContextMap()
	assert.Equal(t, "run-1", fields["run"])
	assert.Equal(t, "orders", fields["container"])
	assert.Equal(t, "A", fields["script"])
	assert.Equal(t, "deploy", fields["op"])

	assert.Equal(t, 1, logs.FilterMessage("compiled").Len())
	failed := logs.FilterMessage("compile failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.ErrorLevel, failed[0].Level)
	assert.Equal(t, "C", failed[0].ContextMap()["script"])
}

func TestRun_DecomposedNamesOnDisk(t *testing.T) {
	const (
		container = "caf\u00e9"
		script    = "cr\u00e9e"
	)
	f := newFixture(t, map[string][]string{"cafe\u0301": {"cre\u0301e"}})
	comp, err := compiler.NewCommand(f.layout, `sh -c 'cat "$1" > "$2"' sh {source} {output}`)
	require.NoError(t, err)
	dir := testutil.NewFakeDirectory(container, f.rec)
	f.registry.Register(container, dir)

	e := New(catalog.New(f.layout), comp, f.registry, WithRunIDGenerator(NewFixedGenerator("run-1")))
	report, err := e.Run(context.Background(), RunOptions{Containers: []string{"cafe\u0301"}})
	require.NoError(t, err)
	require.Len(t, report.Containers, 1)
	assert.Equal(t, container, report.Containers[0].Name)

	o := outcomeOf(t, report, container, script)
	require.NoError(t, o.Err)
	assert.Equal(t, "created", o.Status())
	assert.Equal(t, []procedure.Record{{ID: script, Body: "(args) => {\nexport {}\n}"}}, dir.Creates())
}

// holdCompiler blocks one script's compile until release is closed.
type holdCompiler struct {
	*testutil.FakeCompiler
	container, script string
	started, release  chan struct{}
}

func (c *holdCompiler) Compile(ctx context.Context, container, script string) error {
	if container == c.container && script == c.script {
		close(c.started)
		<-c.release
	}
	return c.FakeCompiler.Compile(ctx, container, script)
}

type runResult struct {
	report *Report
	err    error
}

func runAsync(e *Engine) <-chan runResult {
	done := make(chan runResult, 1)
	go func() {
		report, err := e.Run(context.Background(), RunOptions{})
		done <- runResult{report, err}
	}()
	return done
}

func awaitRun(t *testing.T, done <-chan runResult) *Report {
	t.Helper()
	select {
	case res := <-done:
		require.NoError(t, res.err)
		return res.report
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
		return nil
	}
}

func TestRun_SnapshotWaitsForSlowestCompile(t *testing.T) {
	f := newFixture(t, map[string][]string{"orders": {"A", "B", "C"}})
	hc := &holdCompiler{
		FakeCompiler: f.compiler,
		container:    "orders",
		script:       "B",
		started:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	release := sync.OnceFunc(func() { close(hc.release) })
	t.Cleanup(release)

	var listed atomic.Bool
	f.dirs["orders"].OnList = func() { listed.Store(true) }

	done := runAsync(New(catalog.New(f.layout), hc, f.registry))
	<-hc.started
	require.Eventually(t, func() bool {
		return len(f.rec.Filter(testutil.OpCompiled, "orders")) == 2
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.False(t, listed.Load(), "listed while a compile was still running")

	release()
	report := awaitRun(t, done)
	assert.True(t, listed.Load())
	assert.Equal(t, 3, report.Summary().Created)
}

func TestRun_BlockedSnapshotDoesNotStallOtherContainers(t *testing.T) {
	f := newFixture(t, map[string][]string{"orders": {"A"}, "users": {"U"}})
	unblock := make(chan struct{})
	release := sync.OnceFunc(func() { close(unblock) })
	t.Cleanup(release)
	f.dirs["orders"].OnList = func() { <-unblock }

	done := runAsync(f.engine())
	require.Eventually(t, func() bool {
		return len(f.dirs["users"].Creates()) == 1
	}, 2*time.Second, 5*time.Millisecond, "users waited on the orders listing")
	assert.Empty(t, f.dirs["orders"].Creates())

	release()
	report := awaitRun(t, done)
	assert.Equal(t, "created", outcomeOf(t, report, "orders", "A").Status())
	assert.Equal(t, "created", outcomeOf(t, report, "users", "U").Status())
}

// stallingDirectory blocks Create of one id until release is closed.
type stallingDirectory struct {
	*testutil.FakeDirectory
	id      string
	release chan struct{}
}

func (d stallingDirectory) Create(ctx context.Context, rec procedure.Record) error {
	if rec.ID == d.id {
		<-d.release
	}
	return d.FakeDirectory.Create(ctx, rec)
}

func TestRun_HungWriteStallsOnlyItsScript(t *testing.T) {
	f := newFixture(t, map[string][]string{"orders": {"A", "B", "C"}})
	dir := stallingDirectory{FakeDirectory: f.dirs["orders"], id: "A", release: make(chan struct{})}
	release := sync.OnceFunc(func() { close(dir.release) })
	t.Cleanup(release)
	f.registry.Register("orders", dir)

	done := runAsync(f.engine())
	require.Eventually(t, func() bool {
		return len(f.dirs["orders"].Creates()) == 2
	}, 2*time.Second, 5*time.Millisecond, "siblings waited on the hung create")
	for _, rec := range f.dirs["orders"].Creates() {
		assert.NotEqual(t, "A", rec.ID)
	}

	release()
	report := awaitRun(t, done)
	assert.Equal(t, 3, report.Summary().Created)
}
