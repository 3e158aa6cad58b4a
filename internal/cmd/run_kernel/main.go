// run_kernel is a small testing program to run a WGSL compute kernel over one input array, and print its output.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/chewxy/math32"
	"github.com/gomlx/gomtl/dtypes"
	"github.com/gomlx/gomtl/mtl"
	"github.com/gomlx/gomtl/runtimes"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagRuntime   = flag.String("runtime", "", runtimes.FlagUsage())
	flagDevice    = flag.Int("device", 0, "Index of the device to run on.")
	flagWGSL      = flag.String("wgsl", "", "File with the WGSL source of the kernel.")
	flagKernel    = flag.String("kernel", "", "Name of the kernel (@compute entry point) to run. Defaults to the only one in the file.")
	flagDType     = flag.String("dtype", "f32", "Element type of the input and output arrays: f32, i32 or u32.")
	flagReference = flag.String("reference", "", "For f32: compare the output with a reference function of the input: square, sqrt, exp or abs.")
)

var references = map[string]func(float32) float32{
	"square": func(x float32) float32 { return x * x },
	"sqrt":   math32.Sqrt,
	"exp":    math32.Exp,
	"abs":    math32.Abs,
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `run_kernel will compile a WGSL kernel and run it over the given input values.

$ run_kernel -wgsl=<kernel.wgsl> [-kernel=<name>] <x0> <x1> ...

The kernel must take the input array as @group(0) @binding(0), and write the output array, with the same length,
to @group(0) @binding(1). One thread is dispatched per input value.

Usage:
`)
		flag.PrintDefaults()
	}
	klog.InitFlags(flag.CommandLine)
	flag.Parse()

	if *flagWGSL == "" {
		fmt.Fprintln(os.Stderr, "The WGSL source must be given with the --wgsl flag!")
		fmt.Fprintln(os.Stderr)
		flag.Usage()
		return
	}
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "No input values given.")
		fmt.Fprintln(os.Stderr)
		flag.Usage()
		return
	}
	dtype, found := dtypes.MapOfNames[*flagDType]
	if !found {
		klog.Fatalf("Unknown dtype %q", *flagDType)
	}
	source := string(must.M1(os.ReadFile(*flagWGSL)))

	registry := mtl.NewRegistry(must.M1(runtimes.Select(*flagRuntime)))
	defer func() { must.M(registry.Close()) }()

	switch dtype {
	case dtypes.Float32:
		inputs := parseInputs(flag.Args(), func(s string) (float32, error) {
			v, err := strconv.ParseFloat(s, 32)
			return float32(v), err
		})
		outputs := must.M1(run(registry, source, inputs))
		printOutputs(inputs, outputs)
		if *flagReference != "" {
			compareWithReference(inputs, outputs)
		}
	case dtypes.Int32:
		inputs := parseInputs(flag.Args(), func(s string) (int32, error) {
			v, err := strconv.ParseInt(s, 0, 32)
			return int32(v), err
		})
		printOutputs(inputs, must.M1(run(registry, source, inputs)))
	case dtypes.Uint32:
		inputs := parseInputs(flag.Args(), func(s string) (uint32, error) {
			v, err := strconv.ParseUint(s, 0, 32)
			return uint32(v), err
		})
		printOutputs(inputs, must.M1(run(registry, source, inputs)))
	default:
		klog.Fatalf("dtype %s not supported by run_kernel", dtype)
	}
}

func parseInputs[T dtypes.Supported](args []string, parse func(string) (T, error)) []T {
	var inputs []T
	for _, arg := range args {
		for _, s := range strings.Split(arg, ",") {
			if s = strings.TrimSpace(s); s == "" {
				continue
			}
			v, err := parse(s)
			if err != nil {
				klog.Fatalf("Failed to parse input %q: %v", s, err)
			}
			inputs = append(inputs, v)
		}
	}
	return inputs
}

// run compiles the kernel and dispatches one thread per input value.
func run[T dtypes.Supported](r *mtl.Registry, source string, inputs []T) ([]T, error) {
	device, err := r.DeviceAtIndex(*flagDevice)
	if err != nil {
		return nil, err
	}
	defer r.FreeDevice(device)
	info := must.M1(r.DeviceInfo(device))
	klog.V(1).Infof("Running on device #%d %q", *flagDevice, info.Name)

	library, err := r.NewLibrary(device, source)
	if err != nil {
		return nil, err
	}
	defer r.FreeLibrary(library)
	kernel := *flagKernel
	if kernel == "" {
		names := must.M1(r.LibraryFunctionNames(library))
		if len(names) != 1 {
			return nil, errors.Errorf("the source defines kernels %q, select one with -kernel", names)
		}
		kernel = names[0]
	}
	function, err := r.NewFunction(library, kernel)
	if err != nil {
		return nil, err
	}
	defer r.FreeFunction(function)
	pipeline, err := r.NewComputePipelineState(device, function)
	if err != nil {
		return nil, err
	}
	defer r.FreeComputePipelineState(pipeline)

	input, err := mtl.NewBufferFromSlice(r, device, inputs)
	if err != nil {
		return nil, err
	}
	defer r.FreeBuffer(input)
	output, err := mtl.NewBufferFromSlice(r, device, make([]T, len(inputs)))
	if err != nil {
		return nil, err
	}
	defer r.FreeBuffer(output)

	queue, err := r.NewCommandQueue(device)
	if err != nil {
		return nil, err
	}
	defer r.FreeCommandQueue(queue)
	commandBuffer, err := r.NewCommandBuffer(queue)
	if err != nil {
		return nil, err
	}
	defer r.FreeCommandBuffer(commandBuffer)
	encoder, err := r.NewCommandEncoder(commandBuffer)
	if err != nil {
		return nil, err
	}
	defer r.FreeCommandEncoder(encoder)
	for _, step := range []func() error{
		func() error { return r.SetComputePipelineState(encoder, pipeline) },
		func() error { return r.SetBuffer(encoder, input, 0) },
		func() error { return r.SetBuffer(encoder, output, 1) },
		func() error { return r.SetThreadsAndShape(encoder, pipeline, uint32(len(inputs)), 1, 1) },
		func() error { return r.EndEncoding(encoder) },
		func() error { return r.CommitCommandBuffer(commandBuffer) },
		func() error { return r.WaitForCompletion(context.Background(), commandBuffer) },
	} {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return mtl.BufferToSlice[T](r, output)
}

func printOutputs[T dtypes.Supported](inputs, outputs []T) {
	for ii, x := range inputs {
		fmt.Printf("\tf(x=%v) = %v\n", x, outputs[ii])
	}
}

func compareWithReference(inputs, outputs []float32) {
	reference, found := references[*flagReference]
	if !found {
		klog.Fatalf("Unknown reference function %q", *flagReference)
	}
	var maxErr float32
	for ii, x := range inputs {
		maxErr = math32.Max(maxErr, math32.Abs(outputs[ii]-reference(x)))
	}
	fmt.Printf("Max absolute difference to %s(x): %g\n", *flagReference, maxErr)
}
