// Package cli implements the command-line interface of jitbuild.
//
// # Overview
//
// jitbuild compiles the compute kernels of a parallel job before the job
// computes. Per scope (the whole job, or each node) one process builds every
// kernel into a shared cache directory while the others wait on a barrier,
// then every process loads the cached binaries. A failure on any process
// aborts all of them.
//
// # Commands
//
// build - Run one process of a coordinated build:
//
//	jitbuild build --manifest kernels.yaml [--node-local] [--rendezvous ADDR] [--listen ADDR]
//
// Rank and size come from the job launcher environment. Jobs of more than one
// process exchange collectives through a rendezvous server.
//
// simulate - Run a multi-process build in one process:
//
//	jitbuild simulate --manifest kernels.yaml --ranks 8 --nodes 2 --node-local
//
// rendezvous - Serve collectives for the processes of a job:
//
//	jitbuild rendezvous --listen :7077 --job-id JOB
//
// cache status - Report completion, staleness and artifacts of a cache:
//
//	jitbuild cache status --cache-dir /scratch/cache
//
// cache push - Publish a finished cache as an OCI artifact:
//
//	jitbuild cache push --cache-dir /scratch/cache --target oci://ghcr.io/acme/kernels:v1
//
// # Global Flags
//
//	--log-level    Log level: debug, info, warn, error (default: info)
//	--config, -c   Configuration file (YAML or JSON)
//	--help, -h     Show command help
//	--version, -v  Show version information
//
// # Output Formats
//
// Commands that produce a report accept --output and --format (yaml, json,
// table). YAML is the default.
//
// # Environment Variables
//
//	LOG_LEVEL                          Logging verbosity
//	JITBUILD_CONFIG                    Configuration file
//	JITBUILD_BACKEND                   Thread model (Serial, CUDA, HIP, OpenCL)
//	JITBUILD_DEVICE_NUMBER             Device id or LOCAL-RANK
//	JITBUILD_CACHE_DIR                 Shared kernel cache directory
//	JITBUILD_INSTALL_DIR               Root for relative kernel sources
//	JITBUILD_BUILD_ONLY                Compile verbosely and exit
//	JITBUILD_BUILD_NODE_LOCAL          One builder per node
//	JITBUILD_CC, JITBUILD_CFLAGS       Native compiler and flags
//	JITBUILD_MPI_UNDERLYING_COMPILER   Native compiler for device backends
//	JITBUILD_KERNEL_COMPILER           Portable kernel translator
//	JITBUILD_RENDEZVOUS                Rendezvous server address
//	JITBUILD_JOB_ID                    Job id checked by the rendezvous server
//	JITBUILD_PLUGIN                    Go plugin exporting user hooks
//	JITBUILD_HOSTNAME                  Node identity override
//	JITBUILD_RANK, JITBUILD_SIZE       Process position (also OMPI_COMM_WORLD_*, PMI_*, SLURM_*)
//
// Flags override environment variables, which override the configuration file.
//
// # Exit Codes
//
//	0  Success
//	1  General error (invalid configuration, compile failure, aborted job)
//	2  Context canceled or timeout
//
// Version information is embedded at build time using ldflags:
//
//	go build -ldflags="-X 'github.com/NVIDIA/jitbuild/pkg/cli.version=1.0.0'"
package cli
