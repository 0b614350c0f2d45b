package unlock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-pipeline/internal/pdfdoc"
)

type fakeDoc struct {
	encrypted bool
	password  string
	attempts  *int
	plain     []byte
}

func (d fakeDoc) Encrypted() bool { return d.encrypted }

func (d fakeDoc) Authenticate(pw string) bool {
	*d.attempts++
	return pw == d.password
}

func (d fakeDoc) Decrypted() ([]byte, error) { return d.plain, nil }

func opener(doc fakeDoc) OpenFunc {
	return func([]byte) (Lockable, error) { return doc, nil }
}

func TestUnlockAlreadyOpenIsByteIdentical(t *testing.T) {
	attempts := 0
	u := New(Config{Password: "secret"}, zerolog.Nop(), WithOpener(opener(fakeDoc{attempts: &attempts})))

	in := []byte("%PDF-1.7 unchanged bytes")
	res, err := u.Unlock(context.Background(), "landing/cards/pdf/20240115-estado.pdf", in)
	require.NoError(t, err)

	assert.Equal(t, StateAlreadyOpen, res.State)
	assert.Equal(t, in, res.Data)
	assert.Equal(t, "20240115-estado_unlocked.pdf", res.Name)
	assert.Equal(t, "2024", res.YearFolder)
	assert.Zero(t, attempts)

	again, err := u.Unlock(context.Background(), "x.pdf", res.Data)
	require.NoError(t, err)
	assert.Equal(t, in, again.Data)
}

func TestUnlockDecrypts(t *testing.T) {
	attempts := 0
	doc := fakeDoc{encrypted: true, password: "secret", attempts: &attempts, plain: []byte("plain")}
	u := New(Config{Password: "secret"}, zerolog.Nop(), WithOpener(opener(doc)))

	res, err := u.Unlock(context.Background(), "cards/pdf/estado.pdf", []byte("locked"))
	require.NoError(t, err)
	assert.Equal(t, StateDecrypted, res.State)
	assert.Equal(t, []byte("plain"), res.Data)
	assert.Equal(t, "unclassified", res.YearFolder)
	assert.Equal(t, 1, attempts)
}

func TestUnlockWrongPasswordSingleAttempt(t *testing.T) {
	attempts := 0
	doc := fakeDoc{encrypted: true, password: "secret", attempts: &attempts}
	u := New(Config{Password: "wrong"}, zerolog.Nop(), WithOpener(opener(doc)))

	res, err := u.Unlock(context.Background(), "a.pdf", []byte("locked"))
	assert.True(t, errors.Is(err, pdfdoc.ErrAuthFailed))
	assert.Equal(t, StateAuthFailed, res.State)
	assert.Equal(t, 1, attempts)
}

func TestUnlockEmptyPasswordNeverTried(t *testing.T) {
	attempts := 0
	doc := fakeDoc{encrypted: true, password: "", attempts: &attempts}
	u := New(Config{}, zerolog.Nop(), WithOpener(opener(doc)))

	_, err := u.Unlock(context.Background(), "a.pdf", []byte("locked"))
	assert.ErrorIs(t, err, pdfdoc.ErrAuthFailed)
	assert.Zero(t, attempts)
}

func TestUnlockOpenError(t *testing.T) {
	u := New(Config{}, zerolog.Nop(), WithOpener(func([]byte) (Lockable, error) {
		return nil, errors.New("bad header")
	}))
	_, err := u.Unlock(context.Background(), "a.pdf", nil)
	assert.ErrorContains(t, err, "bad header")
}

func TestUnlockKeepsLocalCopy(t *testing.T) {
	out := t.TempDir()
	attempts := 0
	doc := fakeDoc{encrypted: true, password: "pw", attempts: &attempts, plain: []byte("plain")}
	u := New(Config{Password: "pw", KeepLocalCopy: true, OutputDir: out}, zerolog.Nop(), WithOpener(opener(doc)))

	res, err := u.Unlock(context.Background(), "landing/cards/pdf/20240115-e.pdf", []byte("locked"))
	require.NoError(t, err)

	want := filepath.Join(out, "cards", "pdf_unlocked", "20240115-e_unlocked.pdf")
	assert.Equal(t, want, res.LocalPath)
	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "plain", string(data))
}

func TestUnlockedName(t *testing.T) {
	assert.Equal(t, "a_unlocked.pdf", UnlockedName("a.pdf"))
	assert.Equal(t, "a_unlocked.PDF", UnlockedName("a.PDF"))
	assert.Equal(t, "a_unlocked.pdf", UnlockedName("a"))
}

func TestDestinationKey(t *testing.T) {
	tests := []struct {
		prefix, key, want string
	}{
		{"cards/pdf_unlocked", "landing/cards/pdf/20240115-e.pdf", "cards/pdf_unlocked/2024/20240115-e_unlocked.pdf"},
		{"/cards/pdf_unlocked/", "landing/e.pdf", "cards/pdf_unlocked/unclassified/e_unlocked.pdf"},
		{"gs://bucket/cards/pdf_unlocked", "2023-12-01-e.pdf", "cards/pdf_unlocked/2023/2023-12-01-e_unlocked.pdf"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DestinationKey(tt.prefix, tt.key))
	}
}

func TestLocalCopyPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "cards", "pdf_unlocked", "x_unlocked.pdf"), LocalCopyPath("out", "landing/cards/pdf/x.pdf"))
	assert.Equal(t, filepath.Join("out", "x_unlocked.pdf"), LocalCopyPath("out", "x.pdf"))
}
