package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/micromdm/nanolib/log"
)

type fakeStarter struct {
	name  string
	input []byte
}

func (f *fakeStarter) StartWorkflow(_ context.Context, name string, input []byte) (string, error) {
	f.name = name
	f.input = input
	return "inst-42", nil
}

func TestStartWorkflowHandler(t *testing.T) {
	starter := new(fakeStarter)
	hf := StartWorkflowHandler(starter, log.NopLogger)

	body := `{"requestType":"unbondDevice","devAddr":"3"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/workflow/start", strings.NewReader(body))
	rec := httptest.NewRecorder()
	hf(rec, req)

	if have, want := rec.Code, http.StatusAccepted; have != want {
		t.Fatalf("status: have: %v, want: %v", have, want)
	}
	if have, want := starter.name, "unbondDevice"; have != want {
		t.Errorf("workflow name: have: %v, want: %v", have, want)
	}
	if have, want := string(starter.input), body; have != want {
		t.Errorf("input: have: %v, want: %v", have, want)
	}

	var resp struct {
		InstanceID string `json:"instance_id"`
		StatusURL  string `json:"status_url"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if have, want := resp.InstanceID, "inst-42"; have != want {
		t.Errorf("instance id: have: %v, want: %v", have, want)
	}
	if have, want := resp.StatusURL, "/v1/instance/inst-42"; have != want {
		t.Errorf("status url: have: %v, want: %v", have, want)
	}
}

func TestStartWorkflowHandlerBadRequest(t *testing.T) {
	hf := StartWorkflowHandler(new(fakeStarter), log.NopLogger)

	for _, body := range []string{"", "not json", `{"devAddr":"3"}`} {
		req := httptest.NewRequest(http.MethodPost, "/v1/workflow/start", strings.NewReader(body))
		rec := httptest.NewRecorder()
		hf(rec, req)
		if have, want := rec.Code, http.StatusBadRequest; have != want {
			t.Errorf("body %q status: have: %v, want: %v", body, have, want)
		}
	}
}
