// mtl_devices lists the devices available to gomtl, with their description and memory limits.
//
// With -check it also runs a tiny kernel on every device (concurrently), and reports how long it took, to
// verify that the device is usable and not only enumerated.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gomlx/gomtl/mtl"
	"github.com/gomlx/gomtl/runtimes"
	"github.com/janpfeifer/must"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

var (
	flagRuntime = flag.String("runtime", "", runtimes.FlagUsage())
	flagCheck   = flag.Bool("check", false, "Run a small kernel on each device.")
	flagMetrics = flag.Bool("metrics", false, "Print the registry metrics, in Prometheus text format, at the end.")
)

const checkSource = `
@group(0) @binding(0) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(64)
fn check(@builtin(global_invocation_id) id: vec3<u32>) {
    data[id.x] = data[id.x] + id.x;
}
`

const checkSize = 1024

type deviceReport struct {
	index     int
	backend   string
	info      string
	allocated int64
	check     time.Duration
	checkErr  error
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "mtl_devices lists the GPU devices available to gomtl.\n\nUsage:\n")
		flag.PrintDefaults()
	}
	klog.InitFlags(flag.CommandLine)
	flag.Parse()

	runtime := must.M1(runtimes.Select(*flagRuntime))
	registry := mtl.NewRegistry(runtime)
	defer func() { must.M(registry.Close()) }()
	fmt.Printf("Runtime: %s\n", runtime.Name())

	numDevices := must.M1(registry.NumberOfDevices())
	nativeDevices := must.M1(runtime.Devices())
	reports := make([]deviceReport, numDevices)
	var g errgroup.Group
	for ii := range numDevices {
		g.Go(func() error {
			report, err := describe(registry, ii)
			if err != nil {
				return errors.WithMessagef(err, "device #%d", ii)
			}
			report.backend = runtime.Name()
			if withBackend, ok := nativeDevices[ii].(interface{ Backend() string }); ok {
				report.backend = withBackend.Backend()
			}
			reports[ii] = report
			return nil
		})
	}
	must.M(g.Wait())

	table := tablewriter.NewWriter(os.Stdout)
	header := []string{"#", "Backend", "Device", "Allocated"}
	if *flagCheck {
		header = append(header, "Check")
	}
	must.M(table.Append(header))
	for _, report := range reports {
		row := []string{strconv.Itoa(report.index), report.backend, report.info, strconv.FormatInt(report.allocated, 10)}
		if *flagCheck {
			if report.checkErr != nil {
				row = append(row, "failed: "+report.checkErr.Error())
			} else {
				row = append(row, "ok in "+report.check.String())
			}
		}
		must.M(table.Append(row))
	}
	must.M(table.Render())

	if *flagMetrics {
		promRegistry := prometheus.NewRegistry()
		must.M(promRegistry.Register(registry.Collector()))
		fmt.Println()
		for _, family := range must.M1(promRegistry.Gather()) {
			must.M1(expfmt.MetricFamilyToText(os.Stdout, family))
		}
	}
}

func describe(r *mtl.Registry, index int) (report deviceReport, err error) {
	report.index = index
	device, err := r.DeviceAtIndex(index)
	if err != nil {
		return
	}
	defer r.FreeDevice(device)
	info, err := r.DeviceInfo(device)
	if err != nil {
		return
	}
	report.info = fmt.Sprintf("%q low-power=%v headless=%v max-working-set=%d registry-id=%#x",
		info.Name, info.IsLowPower, info.IsHeadless, info.RecommendedMaxWorkingSetSize, info.RegistryID)
	if *flagCheck {
		start := time.Now()
		report.checkErr = check(r, device)
		report.check = time.Since(start)
	}
	report.allocated, err = r.DeviceAllocatedMemory(device)
	if err != nil {
		// Not all backends track allocations.
		report.allocated, err = -1, nil
	}
	return
}

// check runs the check kernel once and verifies its result.
func check(r *mtl.Registry, device mtl.Handle) error {
	library, err := r.NewLibrary(device, checkSource)
	if err != nil {
		return err
	}
	defer r.FreeLibrary(library)
	function, err := r.NewFunction(library, "check")
	if err != nil {
		return err
	}
	defer r.FreeFunction(function)
	pipeline, err := r.NewComputePipelineState(device, function)
	if err != nil {
		return err
	}
	defer r.FreeComputePipelineState(pipeline)
	buffer, err := mtl.NewBufferFromSlice(r, device, make([]uint32, checkSize))
	if err != nil {
		return err
	}
	defer r.FreeBuffer(buffer)
	queue, err := r.NewCommandQueue(device)
	if err != nil {
		return err
	}
	defer r.FreeCommandQueue(queue)
	commandBuffer, err := r.NewCommandBuffer(queue)
	if err != nil {
		return err
	}
	defer r.FreeCommandBuffer(commandBuffer)
	encoder, err := r.NewCommandEncoder(commandBuffer)
	if err != nil {
		return err
	}
	defer r.FreeCommandEncoder(encoder)
	if err = r.SetComputePipelineState(encoder, pipeline); err != nil {
		return err
	}
	if err = r.SetBuffer(encoder, buffer, 0); err != nil {
		return err
	}
	if err = r.SetThreadsAndShape(encoder, pipeline, checkSize, 1, 1); err != nil {
		return err
	}
	if err = r.EndEncoding(encoder); err != nil {
		return err
	}
	if err = r.CommitCommandBuffer(commandBuffer); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err = r.WaitForCompletion(ctx, commandBuffer); err != nil {
		return err
	}
	values, err := mtl.BufferToSlice[uint32](r, buffer)
	if err != nil {
		return err
	}
	for ii, v := range values {
		if v != uint32(ii) {
			return errors.Errorf("check kernel wrote %d at position %d, wanted %d", v, ii, ii)
		}
	}
	return nil
}
