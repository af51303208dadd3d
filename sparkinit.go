// Copyright 2015 Apcera Inc. All rights reserved.

package main

import (
	"fmt"
	"net/url"
	"os"
	"runtime"

	"github.com/apcera/logray"
	kinit "github.com/johndoe6345789/SparkOS/init"
	"github.com/johndoe6345789/SparkOS/launcher"
)

func consoleOutput(scheme string) string {
	u := url.URL{
		Scheme: scheme,
		RawQuery: url.Values(map[string][]string{
			"format": []string{kinit.LogFormat},
		}).Encode(),
	}
	return u.String()
}

func main() {
	// a program launch re-executes this binary to drop privileges before exec
	if launcher.Intercepted() {
		os.Exit(launcher.RunIntercept())
	}

	logray.AddDefaultOutput(consoleOutput("stdout"), logray.INFO)
	logray.AddDefaultOutput(consoleOutput("stderr"), logray.WARNPLUS)

	if err := kinit.Run(); err != nil {
		// logray writes asynchronously and would lose this on exit
		fmt.Fprintf(os.Stderr, "sparkinit: %v\n", err)
		os.Exit(1)
	}
	runtime.Goexit()
}
