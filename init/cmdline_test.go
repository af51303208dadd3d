// Copyright 2015 Apcera Inc. All rights reserved.
//
// This file is based on code from:
//   https://github.com/rancherio/os
//
// Code is licensed under Apache 2.0.
// Copyright (c) 2014-2015 Rancher Labs, Inc.

package init

import (
	"testing"

	tt "github.com/apcera/util/testtool"
)

func TestParseCmdline(t *testing.T) {
	expected := map[string]interface{}{
		"debug":    true,
		"key1":     "value1",
		"key2":     "value2",
		"keyArray": []string{"1", "2"},
		"obj1": map[string]interface{}{
			"key3": "3value",
			"obj2": map[string]interface{}{
				"key4": true,
			},
		},
		"key5": 5,
	}

	actual := parseCmdline("a b sparkos.debug sparkos.keyArray=[1,2] sparkos.key1=value1 c sparkos.key2=value2 sparkos.obj1.key3=3value sparkos.obj1.obj2.key4 sparkos.key5=5")

	tt.TestEqual(t, actual, expected)
}

func TestParseCmdlineConflictingKeys(t *testing.T) {
	// obj is a string first, so the nested key can't be placed under it
	actual := parseCmdline("sparkos.obj=1x sparkos.obj.key=2")
	tt.TestEqual(t, actual, map[string]interface{}{"obj": "1x"})
}

func TestCmdlineConfig(t *testing.T) {
	tt.StartTest(t)
	defer tt.FinishTest(t)

	file := tt.WriteTempFile(t, "BOOT_IMAGE=/boot/vmlinuz root=/dev/sda1 ro quiet "+
		"sparkos.profile=root sparkos.hostname=spark1 sparkos.respawn_delay=5s "+
		"sparkos.program.args=[/bin/sh,-i] sparkos.program.uid=0 "+
		"sparkos.program.env=[LANG=C,TERM=vt100] sparkos.overlay.disabled\n")

	config, err := getConfigFromCmdline(file)
	tt.TestExpectSuccess(t, err)
	tt.TestExpectNonNil(t, config)
	tt.TestEqual(t, config.Profile, "root")
	tt.TestEqual(t, config.Hostname, "spark1")
	tt.TestEqual(t, config.RespawnDelay, "5s")
	tt.TestEqual(t, config.Program.Args, []string{"/bin/sh", "-i"})
	tt.TestEqual(t, config.Program.Env, []string{"LANG=C", "TERM=vt100"})
	tt.TestEqual(t, *config.Program.UID, 0)
	tt.TestTrue(t, config.Program.GID == nil)
	tt.TestTrue(t, config.Overlay.Disabled)
}

func TestCmdlineConfigMissingFile(t *testing.T) {
	config, err := getConfigFromCmdline("/nonexistent/cmdline")
	tt.TestExpectSuccess(t, err)
	tt.TestTrue(t, config == nil)
}

func TestCmdlineConfigWithoutParameters(t *testing.T) {
	tt.StartTest(t)
	defer tt.FinishTest(t)

	file := tt.WriteTempFile(t, "root=/dev/sda1 quiet\n")
	config, err := getConfigFromCmdline(file)
	tt.TestExpectSuccess(t, err)
	tt.TestTrue(t, config == nil)
}

func TestCmdlineConfigBadType(t *testing.T) {
	tt.StartTest(t)
	defer tt.FinishTest(t)

	// the uid must be a number
	file := tt.WriteTempFile(t, "sparkos.program.uid=abc\n")
	_, err := getConfigFromCmdline(file)
	tt.TestExpectError(t, err)

	file = tt.WriteTempFile(t, "sparkos.program.args=5\n")
	_, err = getConfigFromCmdline(file)
	tt.TestExpectError(t, err)
}

func TestCmdlineConfigNumericText(t *testing.T) {
	tt.StartTest(t)
	defer tt.FinishTest(t)

	file := tt.WriteTempFile(t, "quiet sparkos.hostname=1234 sparkos.profile=root "+
		"sparkos.respawn_delay=5 sparkos.program.dir=true sparkos.program.uid=7\n")
	config, err := getConfigFromCmdline(file)
	tt.TestExpectSuccess(t, err)
	tt.TestExpectNonNil(t, config)

	// the numbers that name things are kept as text, the rest of the
	// parameters still apply
	tt.TestEqual(t, config.Hostname, "1234")
	tt.TestEqual(t, config.Profile, "root")
	tt.TestEqual(t, config.RespawnDelay, "5")
	tt.TestEqual(t, config.Program.Dir, "true")
	tt.TestEqual(t, *config.Program.UID, 7)
}
