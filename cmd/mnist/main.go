package main

import (
	"os"

	"github.com/Brownie44l1/mnist-infer/internal/cli"

	_ "github.com/Brownie44l1/mnist-infer/internal/model/gorgonnx"
	_ "github.com/Brownie44l1/mnist-infer/internal/model/onnxrt"
	_ "github.com/Brownie44l1/mnist-infer/internal/model/tensorflow"
)

func main() {
	os.Exit(cli.Run(os.Args[1:], os.Stdout, os.Stderr))
}
