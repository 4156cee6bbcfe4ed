// Package env provides some rudimentary environment variable parsing.
package env

import (
	"fmt"
	"os"
	"strconv"
)

const GATEQUEUE_LOG_LEVEL string = "GATEQUEUE_LOG_LEVEL"
const GATEQUEUE_LOG_LEVEL_DEFAULT string = "WARNING"
const GATEQUEUE_LOG_OUTPUT_CONSOLE string = "GATEQUEUE_LOG_OUTPUT_CONSOLE"
const GATEQUEUE_LOG_OUTPUT_CONSOLE_DEFAULT bool = false

const GATEQUEUE_METRICS string = "GATEQUEUE_METRICS"
const GATEQUEUE_METRICS_DEFAULT bool = false
const GATEQUEUE_METRICS_PORT string = "GATEQUEUE_METRICS_PORT"
const GATEQUEUE_METRICS_PORT_DEFAULT uint16 = 20000

const GATEQUEUE_SIM_DEVICES string = "GATEQUEUE_SIM_DEVICES"
const GATEQUEUE_SIM_DEVICES_DEFAULT int = 1
const GATEQUEUE_SIM_JOBS string = "GATEQUEUE_SIM_JOBS"
const GATEQUEUE_SIM_JOBS_DEFAULT int = 10
const GATEQUEUE_SIM_BUSY_TIME_MS string = "GATEQUEUE_SIM_BUSY_TIME_MS"
const GATEQUEUE_SIM_BUSY_TIME_MS_DEFAULT int = 100

type ErrorNotFound struct {
	name string
}

func newErrorNotFound(name string) error {
	return &ErrorNotFound{name: name}
}

func (err *ErrorNotFound) Error() string {
	return fmt.Sprintf("Did not find variable '%s'", err.name)
}

func GetOptionalBool(name string, def bool) (bool, error) {
	if v, e := os.LookupEnv(name); e {
		return strconv.ParseBool(v)
	}
	return def, nil
}

func GetRequiredBool(name string) (bool, error) {
	if v, e := os.LookupEnv(name); e {
		return strconv.ParseBool(v)
	}
	return false, newErrorNotFound(name)
}

func GetOptionalString(name string, def string) (string, error) {
	if v, e := os.LookupEnv(name); e {
		return v, nil
	}
	return def, nil
}

func GetRequiredString(name string) (string, error) {
	if v, e := os.LookupEnv(name); e {
		return v, nil
	}
	return "", newErrorNotFound(name)
}

func GetOptionalInteger(name string, def int) (int, error) {
	if v, e := os.LookupEnv(name); e {
		// by setting a base of 0, the base is implied by the string's format
		i64, err := strconv.ParseInt(v, 0, 0)
		return int(i64), err
	}
	return def, nil
}

func GetRequiredInteger(name string) (int, error) {
	if v, e := os.LookupEnv(name); e {
		// by setting a base of 0, the base is implied by the string's format
		i64, err := strconv.ParseInt(v, 0, 0)
		return int(i64), err
	}
	return 0, newErrorNotFound(name)
}

func GetOptionalUint16(name string, def uint16) (uint16, error) {
	if v, e := os.LookupEnv(name); e {
		// by setting a base of 0, the base is implied by the string's format
		i64, err := strconv.ParseUint(v, 0, 16)
		return uint16(i64), err
	}
	return def, nil
}
