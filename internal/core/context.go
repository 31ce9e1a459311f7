package core

import "time"

// RunTimeout is the maximum duration of one dataset run.
var RunTimeout = 2 * time.Hour

// DeployTimeout is the maximum duration to validate and deploy one target.
var DeployTimeout = 10 * time.Minute
