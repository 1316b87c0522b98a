package controlplane

import (
	"testing"

	"saberd/internal/model"
)

func TestEncodeDecodeEnvelopeRoundTrip(t *testing.T) {
	b, err := Encode(TypeQueueMap, QueueMapData{MapID: "abc", TargetIDs: []string{"t1", "t2"}})
	if err != nil {
		t.Fatal(err)
	}

	var env Envelope
	if err := decode(b, &env); err != nil {
		t.Fatal(err)
	}
	if env.Type != TypeQueueMap {
		t.Fatalf("unexpected type: %s", env.Type)
	}

	var data QueueMapData
	if err := decode(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.MapID != "abc" || len(data.TargetIDs) != 2 {
		t.Fatalf("unexpected data: %+v", data)
	}
}

func TestResultResponseFromIncludesErrorOnlyWhenPresent(t *testing.T) {
	ok := resultResponseFrom(model.InstallerResult{TargetID: "t1", Hash: "h1", Kind: model.ResultSuccess})
	if ok.Error != "" {
		t.Fatalf("expected no error field for a successful result, got %q", ok.Error)
	}

	failed := resultResponseFrom(model.InstallerResult{TargetID: "t1", Hash: "h1", Kind: model.ResultError, Err: errTest{}})
	if failed.Error != "boom" {
		t.Fatalf("expected error text to be carried over, got %q", failed.Error)
	}
}

type errTest struct{}

func (errTest) Error() string { return "boom" }
