package tag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagNames(t *testing.T) {
	for i := 0; i < NbTags; i++ {
		assert.NotEqual(t, "invalid", Tag(i).String(), "tag %d has no name", i)
	}
	assert.Equal(t, "invalid", Tag(NbTags).String())
}

func TestTagClasses(t *testing.T) {
	for i := 0; i < NbTags; i++ {
		tg := Tag(i)
		if tg.IsCont() {
			require.False(t, tg.IsValue(), "%s cannot be both value and continuation", tg)
			require.False(t, tg.IsEnv(), "%s cannot be both env and continuation", tg)
		}
	}
	assert.True(t, Nil.IsValue())
	assert.True(t, Err.IsValue())
	assert.False(t, Cons.IsValue(), "a cons in expression position dispatches as a form")
	assert.False(t, Sym.IsValue())
	assert.True(t, Outermost.IsCont())
	assert.True(t, Terminal.IsCont())
	assert.True(t, RecEnv.IsEnv())
}

func TestTagField(t *testing.T) {
	for i := 0; i < NbTags; i++ {
		e := Tag(i).Field()
		require.True(t, e.IsUint64())
		require.Equal(t, uint64(i), e.Uint64())
	}
}

func TestOpNames(t *testing.T) {
	for op := OpCar; op <= OpEmit; op++ {
		assert.NotEqual(t, "invalid", op.String())
	}
	for op := OpAdd; op <= OpCons; op++ {
		assert.NotEqual(t, "invalid", op.String())
	}
	assert.Equal(t, "invalid", Op1(0).String())
	assert.Equal(t, "invalid", Op2(0).String())
}
