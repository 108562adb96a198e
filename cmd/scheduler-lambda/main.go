// Package main provides the Lambda entry point for scheduled flows.
//
// An EventBridge schedule per flow invokes this function with a constant
// input such as {"flow": "publish"}. The function uses the DynamoDB publish
// log and mirrors the approval file to S3. Reserved concurrency 1 keeps
// runs from overlapping; the file lock under /tmp covers warm reuse.
package main

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/rs/zerolog/log"

	"github.com/fpang/catalog-post-automation/internal/config"
	"github.com/fpang/catalog-post-automation/internal/lambdaboot"
	"github.com/fpang/catalog-post-automation/internal/logging"
	"github.com/fpang/catalog-post-automation/internal/pipeline"
)

var coldStart = true

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var app *lambdaboot.App

func init() {
	logging.Init()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	app, err = lambdaboot.Boot(context.Background(), "scheduler-lambda", cfg, lambdaboot.WithVersion(version))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
}

func main() {
	lambda.Start(handler)
}

// FlowEvent is the scheduled rule's constant input.
type FlowEvent struct {
	Flow string `json:"flow"`
}

// FlowResult is returned to the caller and recorded by Lambda.
type FlowResult struct {
	RunID     string `json:"runId,omitempty"`
	Flow      string `json:"flow"`
	Prepared  int    `json:"prepared"`
	Published int    `json:"published"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	ElapsedMs int64  `json:"elapsedMs"`
}

func handler(ctx context.Context, event FlowEvent) (FlowResult, error) {
	start := time.Now()
	logger := log.With().Str("flow", event.Flow).Bool("coldStart", coldStart).Logger()
	coldStart = false
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		logger = logger.With().Str("requestId", lc.AwsRequestID).Logger()
	}

	if event.Flow == "" {
		return FlowResult{}, errors.New("flow is required")
	}
	logger.Info().Msg("Scheduled flow invoked")

	report, err := app.RunFlow(ctx, event.Flow)
	result := resultFrom(event.Flow, report, time.Since(start))
	if err != nil {
		logger.Error().Err(err).Int64("elapsedMs", result.ElapsedMs).Msg("Scheduled flow failed")
		return result, err
	}
	logger.Info().Int64("elapsedMs", result.ElapsedMs).Msg("Scheduled flow complete")
	return result, nil
}

func resultFrom(flow string, report *pipeline.Report, elapsed time.Duration) FlowResult {
	res := FlowResult{Flow: flow, ElapsedMs: elapsed.Milliseconds()}
	if report != nil {
		res.RunID = report.RunID
		res.Prepared = report.Prepared
		res.Published = report.Published
		res.Failed = report.Failed
		res.Skipped = report.Skipped
	}
	return res
}
