// Copyright 2025 The Deft Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package main provides the deft CLI: a version command and a demo
// pipeline that builds one expression tree and evaluates it on every
// executor the system offers.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"k8s.io/klog/v2"

	"github.com/deft-ml/deft/backend/host"
	"github.com/deft-ml/deft/backend/webgpu"
	"github.com/deft-ml/deft/expr"
	"github.com/deft-ml/deft/tensor"
)

const version = "v0.1.0-dev"

func main() {
	klog.InitFlags(nil)
	size := flag.Int("size", 64, "edge length of the demo matrices")
	tuneDir := flag.String("tune-dir", "", "directory for persisted kernel tuning (WebGPU)")
	flag.Parse()

	if flag.Arg(0) == "version" {
		fmt.Printf("deft %s\n", version)
		return
	}

	if err := run(*size, *tuneDir); err != nil {
		klog.ErrorS(err, "demo failed")
		klog.Flush()
		os.Exit(1)
	}
	klog.Flush()
}

// run evaluates trace(matmul(slice(x), slice(x))) on the host executor
// and, when available, on WebGPU, logging shapes, timings, and cache
// statistics.
func run(size int, tuneDir string) error {
	x, err := tensor.NewRaw(tensor.Shape{size, size}, tensor.Float32, tensor.CPU)
	if err != nil {
		return err
	}
	defer x.Release()
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			x.SetAt(float64(i*size+j)*0.001, i, j)
		}
	}

	half := size / 2
	klog.InfoS("built demo operand", "shape", x.Shape(), "slice", tensor.Shape{half, half})

	hostEx := host.New()
	hostVal, hostDur, err := evaluate(x, half, hostEx)
	if err != nil {
		return err
	}
	klog.InfoS("host evaluation", "trace", hostVal, "duration", hostDur)

	covVal, covDur, err := covariance(x, half, hostEx)
	if err != nil {
		return err
	}
	klog.InfoS("host covariance", "cov[0][0]", covVal, "duration", covDur)

	if !webgpu.IsAvailable() {
		klog.InfoS("webgpu not available, skipping device evaluation")
		return nil
	}
	dev, err := webgpu.New()
	if err != nil {
		return err
	}
	defer dev.Release()
	if tuneDir != "" {
		store, err := webgpu.NewTuneStore(tuneDir)
		if err != nil {
			return err
		}
		dev.SetTuneStore(store)
	}
	klog.InfoS("device executor up", "name", dev.Name())

	devVal, devDur, err := evaluate(x, half, dev)
	if err != nil {
		return err
	}
	klog.InfoS("device evaluation", "trace", devVal, "duration", devDur, "hostDelta", devVal-hostVal)

	// Covariance has no device kernel; evaluation reports a capability error.
	if _, _, err := covariance(x, half, dev); expr.IsCapabilityError(err) {
		klog.InfoS("device covariance gated", "err", err.Error())
	} else if err != nil {
		return err
	}

	// A second pass reuses compiled pipelines and pooled staging buffers.
	if _, redo, err := evaluate(x, half, dev); err == nil {
		klog.InfoS("device evaluation (warm)", "duration", redo)
	}
	planHits, planMisses, planEntries := dev.PlanStats()
	allocated, _, poolHits, poolMisses, pooled := dev.PoolStats()
	klog.InfoS("plan cache", "hits", planHits, "misses", planMisses, "entries", planEntries)
	klog.InfoS("staging pool", "allocated", allocated, "hits", poolHits, "misses", poolMisses, "pooled", pooled)
	return nil
}

// covariance builds cov(slice(x) @ slice(x)) over the leading half-by-half
// corner of x and materializes one element on the given executor.
func covariance(x *tensor.RawTensor, half int, ex expr.Executor) (float64, time.Duration, error) {
	s, err := expr.SliceAll(expr.View(x), []int{0, 0}, []int{half, half})
	if err != nil {
		return 0, 0, err
	}
	mm, err := expr.MatMul(s, s, 1, 0)
	if err != nil {
		return 0, 0, err
	}
	cov, err := expr.Covariance(mm)
	if err != nil {
		return 0, 0, err
	}

	start := time.Now()
	out, err := expr.Eval(cov, ex)
	if err != nil {
		return 0, 0, err
	}
	val := out.At(0, 0)
	dur := time.Since(start)
	out.Release()
	if err := cov.Release(); err != nil {
		return 0, 0, err
	}
	return val, dur, nil
}

// evaluate builds trace((2x)@(2x)) over the leading half-by-half corner of
// x and materializes it on the given executor.
func evaluate(x *tensor.RawTensor, half int, ex expr.Executor) (float64, time.Duration, error) {
	s, err := expr.SliceAll(expr.View(x), []int{0, 0}, []int{half, half})
	if err != nil {
		return 0, 0, err
	}
	mm, err := expr.MatMul(s, s, 2, 0)
	if err != nil {
		return 0, 0, err
	}
	tr, err := expr.Trace(mm)
	if err != nil {
		return 0, 0, err
	}

	start := time.Now()
	out, err := expr.Eval(tr, ex)
	if err != nil {
		return 0, 0, err
	}
	val := out.At() // synchronizes device executors
	dur := time.Since(start)
	out.Release()
	if err := tr.Release(); err != nil {
		return 0, 0, err
	}
	return val, dur, nil
}
