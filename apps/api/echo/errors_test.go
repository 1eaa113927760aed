package echoapi_test

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hcanning/homeroom/storage/securefile"
)

func Test_unreadableStoreShutsDown(t *testing.T) {
	env := setup(t)
	ada := env.createTeacher(t, "ada@x.com", "pw")
	token := env.teacherToken(t, ada)

	select {
	case sig := <-env.app.ShutdownSignal():
		t.Fatalf("unexpected shutdown signal %v", sig)
	default:
	}

	require.NoError(t, os.WriteFile(filepath.Join(env.dir, securefile.DataFileName), []byte("lol"), 0600))

	runHTTPTests(t, env, []httpTest{
		{
			name: "server error", path: "/api/students", token: token,
			wantCode: http.StatusInternalServerError, wantData: marchallObj(t, httpErr{Error: "Internal Server Error"}),
		},
	})

	select {
	case <-env.app.ShutdownSignal():
	default:
		assert.Fail(t, "no shutdown signal after the data file became unreadable")
	}
}
