package transcript

import (
	"bytes"
	"crypto"

	"testing"

	"github.com/lanikai/tlsengine/internal/cryptoprim"
)

func TestAddAndSum(t *testing.T) {
	suite := cryptoprim.NewDefaultSuite()
	tr := New(suite)
	if err := tr.Register(crypto.SHA256); err != nil {
		t.Fatalf("Register: %v", err)
	}

	tr.Add([]byte("client hello"))
	first, err := tr.Sum(crypto.SHA256)
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}

	tr.Add([]byte("server hello"))
	second, err := tr.Sum(crypto.SHA256)
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}

	if bytes.Equal(first, second) {
		t.Fatal("digest did not change after Add")
	}

	again, err := tr.Sum(crypto.SHA256)
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	if !bytes.Equal(second, again) {
		t.Fatal("Sum must not mutate the running digest")
	}
}

func TestSumUnregistered(t *testing.T) {
	tr := New(cryptoprim.NewDefaultSuite())
	if _, err := tr.Sum(crypto.SHA384); err == nil {
		t.Fatal("expected an error for an unregistered hash")
	}
}

func TestCloneForksIndependently(t *testing.T) {
	suite := cryptoprim.NewDefaultSuite()
	tr := New(suite)
	if err := tr.Register(crypto.SHA256); err != nil {
		t.Fatalf("Register: %v", err)
	}
	tr.Add([]byte("client hello up to binders"))

	clone, err := tr.Clone()
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}

	binderSum, err := clone.Sum(crypto.SHA256)
	if err != nil {
		t.Fatalf("Sum on clone: %v", err)
	}

	// Only the real transcript continues to see the rest of the message.
	tr.Add([]byte("binders list"))
	full, err := tr.Sum(crypto.SHA256)
	if err != nil {
		t.Fatalf("Sum on original: %v", err)
	}
	if bytes.Equal(binderSum, full) {
		t.Fatal("clone should not observe bytes added to the original after forking")
	}

	cloneAfter, err := clone.Sum(crypto.SHA256)
	if err != nil {
		t.Fatalf("Sum on clone after original advanced: %v", err)
	}
	if !bytes.Equal(binderSum, cloneAfter) {
		t.Fatal("clone's digest must be unaffected by writes to the original")
	}
}

func TestDropUnused(t *testing.T) {
	suite := cryptoprim.NewDefaultSuite()
	tr := New(suite)
	if err := tr.Register(crypto.SHA256); err != nil {
		t.Fatalf("Register SHA256: %v", err)
	}
	if err := tr.Register(crypto.SHA384); err != nil {
		t.Fatalf("Register SHA384: %v", err)
	}

	tr.DropUnused(crypto.SHA256)

	if _, err := tr.Sum(crypto.SHA256); err != nil {
		t.Fatalf("expected SHA256 to survive DropUnused: %v", err)
	}
	if _, err := tr.Sum(crypto.SHA384); err == nil {
		t.Fatal("expected SHA384 to be dropped")
	}
}
