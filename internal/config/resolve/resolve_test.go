package resolve

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeSecrets struct {
	values map[string]string
}

func (f fakeSecrets) Get(_ context.Context, path string) (string, error) {
	if v, ok := f.values[path]; ok {
		return v, nil
	}
	return "", errors.New("not found")
}

func TestString_ExplicitWins(t *testing.T) {
	explicit := "from-option"
	t.Setenv("TEST_ENV_KEY", "from-env")
	got := String(context.Background(), &explicit, nil, "", MapSource{"key": "from-source"}, "key", "TEST_ENV_KEY", "default")
	assert.Equal(t, "from-option", got)
}

func TestString_SecretBeforeSource(t *testing.T) {
	secrets := fakeSecrets{values: map[string]string{"secret/openai#key": "from-vault"}}
	got := String(context.Background(), nil, secrets, "secret/openai#key", MapSource{"key": "from-source"}, "key", "", "default")
	assert.Equal(t, "from-vault", got)
}

func TestString_SourceBeforeEnv(t *testing.T) {
	t.Setenv("TEST_ENV_KEY2", "from-env")
	got := String(context.Background(), nil, nil, "", MapSource{"key": "from-source"}, "key", "TEST_ENV_KEY2", "default")
	assert.Equal(t, "from-source", got)
}

func TestString_EnvBeforeDefault(t *testing.T) {
	t.Setenv("TEST_ENV_KEY3", "from-env")
	got := String(context.Background(), nil, nil, "", nil, "key", "TEST_ENV_KEY3", "default")
	assert.Equal(t, "from-env", got)
}

func TestString_FallsBackToDefault(t *testing.T) {
	got := String(context.Background(), nil, nil, "", nil, "key", "", "default")
	assert.Equal(t, "default", got)
}

func TestBool_ParsesTruthyAndFalsy(t *testing.T) {
	assert.True(t, Bool(nil, MapSource{"k": "true"}, "k", "", false))
	assert.False(t, Bool(nil, MapSource{"k": "false"}, "k", "", true))
	explicitTrue := true
	assert.True(t, Bool(&explicitTrue, MapSource{"k": "false"}, "k", "", false))
}
