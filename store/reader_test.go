package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hnfgns/lurk-go/tag"
)

func read(t *testing.T, s *Store, src string) Ptr {
	t.Helper()
	p, err := s.ReadString(src)
	require.NoError(t, err, "reading %q", src)
	return p
}

func TestReadAtoms(t *testing.T) {
	s := New()

	p := read(t, s, "42")
	assert.Equal(t, tag.Num, p.Tag)
	assert.Equal(t, uint64(42), p.Val.Uint64())

	assert.True(t, read(t, s, "nil").IsNil())
	assert.Equal(t, s.Lang().T, read(t, s, "t"))
	assert.Equal(t, s.Sym("foo"), read(t, s, "foo"))
	assert.Equal(t, s.Str("hi there"), read(t, s, `"hi there"`))

	neg := read(t, s, "-3")
	assert.Equal(t, tag.Num, neg.Tag)
	var three Ptr
	three = NumUint64(3)
	var sum Ptr
	sum.Tag = tag.Num
	sum.Val.Add(&neg.Val, &three.Val)
	assert.True(t, sum.Val.IsZero(), "-3 reads as the field negation of 3")
}

func TestReadErrors(t *testing.T) {
	s := New()
	for _, src := range []string{
		"", "(", ")", "(1 2", `"open`,
		"(quote)", "(quote 1 2)",
		"(lambda x)", "(lambda () 1)", "(lambda (1) x)",
		"(let () 1)", "(let ((x)) 1)", "(let ((1 2)) 1)",
		"(if 1)", "(if 1 2 3 4)",
		"(car)", "(car 1 2)", "(+ 1)", "(+ 1 2 3)",
		"()  extra",
	} {
		_, err := s.ReadString(src)
		assert.Error(t, err, "expected %q to be rejected", src)
	}
}

func TestLowerLambdaCurried(t *testing.T) {
	s := New()
	got := read(t, s, "(lambda (a b) a)")
	want := read(t, s, "(lambda (a) (lambda (b) a))")
	assert.Equal(t, want, got)
}

func TestLowerLetNested(t *testing.T) {
	s := New()
	got := read(t, s, "(let ((a 1) (b 2)) b)")
	want := read(t, s, "(let ((a 1)) (let ((b 2)) b))")
	assert.Equal(t, want, got)

	gotRec := read(t, s, "(letrec ((f 1) (g 2)) g)")
	wantRec := read(t, s, "(letrec ((f 1)) (letrec ((g 2)) g))")
	assert.Equal(t, wantRec, gotRec)
	assert.NotEqual(t, want, gotRec)
}

func TestLowerApplyCurried(t *testing.T) {
	s := New()
	got := read(t, s, "(f a b)")
	want := read(t, s, "((f a) b)")
	assert.Equal(t, want, got)
}

func TestLowerIfDefaultElse(t *testing.T) {
	s := New()
	got := read(t, s, "(if c 1)")
	want := read(t, s, "(if c 1 nil)")
	assert.Equal(t, want, got)
}

func TestQuoteKeepsData(t *testing.T) {
	s := New()

	// '(f a b) stays a three-element list, not a curried application
	p := read(t, s, "'(f a b)")
	n := s.MustResolve(p)
	require.Equal(t, s.Lang().Quote, n.Children[0])

	datum := s.MustResolve(n.Children[1]).Children[0]
	var count int
	for cur := datum; !cur.IsNil(); cur = s.MustResolve(cur).Children[1] {
		require.Equal(t, tag.Cons, cur.Tag)
		count++
	}
	assert.Equal(t, 3, count)

	assert.Equal(t, read(t, s, "'x"), read(t, s, "(quote x)"))
}

func TestComments(t *testing.T) {
	s := New()
	got := read(t, s, "; header\n(+ 1 ; inline\n 2)")
	want := read(t, s, "(+ 1 2)")
	assert.Equal(t, want, got)
}

func TestFmt(t *testing.T) {
	s := New()
	for _, tc := range []struct{ src, want string }{
		{"42", "42"},
		{"nil", "nil"},
		{"t", "t"},
		{`"hi"`, `"hi"`},
		{"'(1 2 3)", "(quote (1 2 3))"},
		{"(cons 1 2)", "(cons 1 2)"},
	} {
		assert.Equal(t, tc.want, s.Fmt(read(t, s, tc.src)), "source %q", tc.src)
	}

	assert.Equal(t, "(1 . 2)", s.Fmt(s.Cons(NumUint64(1), NumUint64(2))))
	assert.Equal(t, "<error: division by zero>", s.Fmt(ErrPtr(tag.ErrDivByZero)))
}
