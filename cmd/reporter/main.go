package main

import (
	"os"

	"identity-center-reporter/internal/app"
	"identity-center-reporter/internal/lambda"
)

// Version information
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Check if running in Lambda environment
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		lambda.StartLambdaMode()
		return
	}

	app.Version = Version
	app.BuildTime = BuildTime
	app.GitCommit = GitCommit
	app.Execute()
}
