package gomtl

import (
	"flag"
	"os"
	"sync"
	"time"

	"github.com/gomlx/gomtl/mtl"
	"github.com/gomlx/gomtl/runtimes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// WaitTimeoutEnv is the environment variable with the maximum time WaitForCompletion blocks, in
	// time.ParseDuration format (e.g. "30s"). Default is to wait without a time limit.
	WaitTimeoutEnv = "GOMTL_WAIT_TIMEOUT"

	// VerbosityEnv is the environment variable with the klog verbosity level used by the library, when loaded
	// by a host that doesn't parse Go flags.
	VerbosityEnv = "GOMTL_VERBOSITY"
)

var (
	// defaultAPI is created on first use by Default. Protected by muDefault.
	defaultAPI *API
	muDefault  sync.Mutex
)

// Default returns the process-wide API, creating it with NewFromEnv on first use.
//
// If the runtime can't be created, the returned API is still usable: all calls fail, and LastError reports why.
func Default() *API {
	muDefault.Lock()
	defer muDefault.Unlock()
	if defaultAPI != nil {
		return defaultAPI
	}
	api, err := NewFromEnv()
	if err != nil {
		klog.Errorf("gomtl: %+v", err)
		api = newFailedAPI(err)
	}
	defaultAPI = api
	return defaultAPI
}

// CloseDefault closes the process-wide API, if it was created. A later Default creates a new one.
func CloseDefault() error {
	muDefault.Lock()
	defer muDefault.Unlock()
	if defaultAPI == nil {
		return nil
	}
	err := defaultAPI.Close()
	defaultAPI = nil
	return err
}

// NewFromEnv creates an API over the runtime configured by the environment variables runtimes.Env,
// gpu.BackendsEnv, WaitTimeoutEnv and VerbosityEnv.
func NewFromEnv() (*API, error) {
	if err := setVerbosityFromEnv(); err != nil {
		return nil, err
	}
	var options []mtl.Option
	if value := os.Getenv(WaitTimeoutEnv); value != "" {
		timeout, err := time.ParseDuration(value)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid $%s=%q", WaitTimeoutEnv, value)
		}
		options = append(options, mtl.WithWaitTimeout(timeout))
	}
	runtime, err := runtimes.FromEnv()
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create runtime")
	}
	klog.V(1).Infof("gomtl: using runtime %s", runtime.Name())
	return NewAPI(mtl.NewRegistry(runtime, options...)), nil
}

func setVerbosityFromEnv() error {
	value := os.Getenv(VerbosityEnv)
	if value == "" {
		return nil
	}
	fs := flag.NewFlagSet("gomtl", flag.ContinueOnError)
	klog.InitFlags(fs)
	if err := fs.Set("v", value); err != nil {
		return errors.Wrapf(err, "invalid $%s=%q", VerbosityEnv, value)
	}
	return nil
}
