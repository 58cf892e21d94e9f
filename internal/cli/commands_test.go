package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gagyebu/internal/core"
	"gagyebu/internal/editor"
	"gagyebu/internal/log"
	"gagyebu/internal/remote"
	"gagyebu/internal/remote/memory"
)

type fixture struct {
	api  *memory.Store
	rec  core.Record
	conf string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	api := memory.NewSeeded()
	rec, err := api.CreateRecord(context.Background(), core.Creation{
		Date: "2024-05-03", CategoryID: 1, MethodID: 1, Amount: 12000, User: "mina", Memo: "장보기",
	})
	require.NoError(t, err)

	conf := filepath.Join(t.TempDir(), "gagyebuctl.toml")
	require.NoError(t, os.WriteFile(conf, []byte("user = \"jun\"\ntimezone = \"Asia/Seoul\"\n"), 0o600))
	return &fixture{api: api, rec: rec, conf: conf}
}

func (f *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := &App{
		Out: &out,
		Connect: func(Settings, *log.Logger) (remote.Store, error) {
			return f.api, nil
		},
		Now: func() time.Time { return time.Date(2024, 5, 15, 0, 30, 0, 0, time.UTC) },
	}
	root := NewRootCmd(app)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--config", f.conf}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	root := NewRootCmd(&App{})
	assert.Equal(t, "gagyebuctl", root.Use)
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"list", "summary", "add", "edit", "delete", "category", "method"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestList(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "장보기")
	assert.Contains(t, out, "12,000")
	assert.Contains(t, out, "2024-05-01 ~ 2024-05-31: 1 records")

	out, err = f.run(t, "list", "--month", "2024-06")
	require.NoError(t, err)
	assert.NotContains(t, out, "장보기")

	_, err = f.run(t, "list", "--from", "2024-05-31", "--to", "2024-05-01")
	assert.ErrorIs(t, err, core.ErrInvalidRange)
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	_, err := f.api.CreateRecord(context.Background(), core.Creation{
		Date: "2024-05-10", CategoryID: 2, MethodID: 2, Amount: 4000, User: "jun",
	})
	require.NoError(t, err)

	out, err := f.run(t, "summary")
	require.NoError(t, err)
	assert.Contains(t, out, "2 records  16,000")
	assert.Contains(t, out, "식비")
	assert.Contains(t, out, "75%")
	assert.Contains(t, out, "교통")
	assert.Contains(t, out, "25%")
}

func TestAdd(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "add", "--category", "교통", "--method", "현금", "--amount", "1,450", "--memo", "버스")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-05-15 교통 1,450 jun")

	recs, err := f.api.ListRecords(context.Background(), core.DateRange{Start: "2024-05-15", End: "2024-05-15"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(1450), recs[0].Amount)
	assert.Equal(t, "현금", recs[0].Method)
	assert.Equal(t, "jun", recs[0].User)
}

func TestAddRejectsUnknownCategory(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(t, "add", "--category", "여행", "--method", "현금", "--amount", "100")
	require.Error(t, err)
	var ve *core.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, core.FieldCategory, ve.Field)
}

func TestEdit(t *testing.T) {
	f := newFixture(t)
	id := itoa(f.rec.ID)

	out, err := f.run(t, "edit", id, "amount", "15000")
	require.NoError(t, err)
	assert.Contains(t, out, "updated "+id+": amount = 15000")

	got, err := f.api.Get(context.Background(), f.rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), got.Amount)

	_, err = f.run(t, "edit", id, "date", "2024-02-30")
	assert.ErrorIs(t, err, core.ErrInvalidDate)

	_, err = f.run(t, "edit", id, "colour", "red")
	assert.ErrorIs(t, err, core.ErrUnknownField)

	_, err = f.run(t, "edit", id, "user", "jun", "--month", "2024-06")
	assert.ErrorIs(t, err, editor.ErrUnknownRecord)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	id := itoa(f.rec.ID)

	_, err := f.run(t, "delete", id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
	_, err = f.api.Get(context.Background(), f.rec.ID)
	require.NoError(t, err, "unconfirmed delete removed the record")

	out, err := f.run(t, "delete", id, "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted "+id)
	_, err = f.api.Get(context.Background(), f.rec.ID)
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestReferenceCommands(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	out, err := f.run(t, "category", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "식비")
	assert.Contains(t, out, "교통")

	out, err = f.run(t, "category", "add", "  여행 ")
	require.NoError(t, err)
	assert.Contains(t, out, "여행")
	set, err := f.api.References(ctx, core.KindCategory)
	require.NoError(t, err)
	trip, ok := set.Lookup("여행")
	require.True(t, ok, "trimmed label not stored")

	_, err = f.run(t, "category", "add", "   ")
	assert.Error(t, err)

	out, err = f.run(t, "category", "rename", itoa(trip.ID), "여행")
	require.NoError(t, err)
	assert.Contains(t, out, "unchanged")

	out, err = f.run(t, "category", "rename", "여행", "휴가")
	require.NoError(t, err)
	assert.Contains(t, out, "여행 -> 휴가")

	_, err = f.run(t, "category", "delete", "휴가")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")

	out, err = f.run(t, "category", "delete", "휴가", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted category")
	set, err = f.api.References(ctx, core.KindCategory)
	require.NoError(t, err)
	_, ok = set.ByID(trip.ID)
	assert.False(t, ok)

	// the fixture record uses 식비
	_, err = f.run(t, "category", "delete", "식비", "-y")
	assert.ErrorIs(t, err, remote.ErrConflict)

	_, err = f.run(t, "method", "rename", "수표", "어음")
	assert.ErrorIs(t, err, remote.ErrNotFound)

	out, err = f.run(t, "method", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "계좌이체")
}

func TestLoadSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ctl.toml")
	require.NoError(t, os.WriteFile(path, []byte("api_url = \"http://api.local:9000\"\ntimeout = \"3s\"\n"), 0o600))

	s, err := LoadSettings(newViper(), path)
	require.NoError(t, err)
	assert.Equal(t, "http://api.local:9000", s.APIURL)
	assert.Equal(t, 3*time.Second, s.Timeout)
	assert.Equal(t, "Asia/Seoul", s.Timezone)

	t.Setenv("GAGYEBU_API_URL", "https://ledger.example")
	s, err = LoadSettings(newViper(), path)
	require.NoError(t, err)
	assert.Equal(t, "https://ledger.example", s.APIURL)

	_, err = LoadSettings(newViper(), filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
