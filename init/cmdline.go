// Copyright 2015 Apcera Inc. All rights reserved.
//
// Portions of this file are based on code from:
//   https://github.com/rancherio/os
//
// Code is licensed under Apache 2.0.
// Copyright (c) 2014-2015 Rancher Labs, Inc.

package init

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

var integerValue = regexp.MustCompile("^[0-9]+$")

// getConfigFromCmdline reads the sparkos.* kernel parameters. It returns nil,
// nil if the command line cannot be read, which is the case before /proc is
// mounted.
func getConfigFromCmdline(file string) (*sparkConfig, error) {
	b, err := ioutil.ReadFile(file)
	if err != nil {
		return nil, nil
	}
	parsed := parseCmdline(strings.TrimSpace(string(b)))
	if len(parsed) == 0 {
		return nil, nil
	}
	return decodeConfig(parsed)
}

// decodeConfig converts the generic nested map into a *sparkConfig by taking a
// round trip through JSON. A number or boolean given where the configuration
// wants text, like a numeric hostname, is taken as text.
func decodeConfig(genericConfig map[string]interface{}) (*sparkConfig, error) {
	for {
		b, err := json.Marshal(genericConfig)
		if err != nil {
			return nil, err
		}
		var config *sparkConfig
		err = json.Unmarshal(b, &config)
		if err == nil {
			return config, nil
		}

		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) || typeErr.Type == nil || typeErr.Type.Kind() != reflect.String {
			return nil, err
		}
		// each pass turns one more value into a string, so this ends
		if !restringValue(genericConfig, typeErr.Field) {
			return nil, err
		}
	}
}

// restringValue replaces the integer or boolean at the dotted field path with
// its text. It returns false if there is no such value.
func restringValue(m map[string]interface{}, field string) bool {
	keys := strings.Split(field, ".")
	for _, key := range keys[:len(keys)-1] {
		next, ok := lookupKey(m, key).(map[string]interface{})
		if !ok {
			return false
		}
		m = next
	}

	last := keys[len(keys)-1]
	for k, v := range m {
		if !strings.EqualFold(k, last) {
			continue
		}
		switch v.(type) {
		case int, bool:
			m[k] = fmt.Sprint(v)
			return true
		}
	}
	return false
}

// lookupKey finds key the way encoding/json matches object keys to fields.
func lookupKey(m map[string]interface{}, key string) interface{} {
	if v, ok := m[key]; ok {
		return v
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}

// parseCmdline turns "sparkos.a.b=value" parameters into nested maps. Other
// parameters are ignored, a parameter without a value is taken as true.
func parseCmdline(cmdLine string) map[string]interface{} {
	result := make(map[string]interface{})

outer:
	for _, part := range strings.Fields(cmdLine) {
		if !strings.HasPrefix(part, cmdlinePrefix) {
			continue
		}

		var value string
		kv := strings.SplitN(part, "=", 2)

		if len(kv) == 1 {
			value = "true"
		} else {
			value = kv[1]
		}

		current := result
		keys := strings.Split(kv[0], ".")[1:]
		for i, key := range keys {
			if i == len(keys)-1 {
				current[key] = cmdlineValue(value)
			} else {
				if obj, ok := current[key]; ok {
					if newCurrent, ok := obj.(map[string]interface{}); ok {
						current = newCurrent
					} else {
						continue outer
					}
				} else {
					newCurrent := make(map[string]interface{})
					current[key] = newCurrent
					current = newCurrent
				}
			}
		}
	}
	return result
}

// cmdlineValue guesses the type of a parameter value: [a,b] lists, booleans
// and integers, anything else stays a string.
func cmdlineValue(value string) interface{} {
	if strings.HasPrefix(value, "[") && strings.HasSuffix(value, "]") {
		inner := value[1 : len(value)-1]
		if inner == "" {
			return []string{}
		}
		return strings.Split(inner, ",")
	}

	switch {
	case value == "true":
		return true
	case value == "false":
		return false
	case integerValue.MatchString(value):
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return value
}
