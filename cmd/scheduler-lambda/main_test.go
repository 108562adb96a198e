package main

import (
	"testing"
	"time"

	"github.com/fpang/catalog-post-automation/internal/pipeline"
)

func TestResultFrom(t *testing.T) {
	res := resultFrom("publish", &pipeline.Report{RunID: "r1", Published: 1, Failed: 2}, 1500*time.Millisecond)
	if res.RunID != "r1" || res.Published != 1 || res.Failed != 2 || res.ElapsedMs != 1500 {
		t.Errorf("unexpected result %+v", res)
	}

	res = resultFrom("token-refresh", nil, time.Second)
	if res.Flow != "token-refresh" || res.RunID != "" {
		t.Errorf("unexpected result %+v", res)
	}
}
