package app

import (
	"io"

	"github.com/vk/flowgridgo/internal/registry"
	"github.com/vk/flowgridgo/modules/counter"
	"github.com/vk/flowgridgo/modules/env_vars"
	"github.com/vk/flowgridgo/modules/http_request"
	"github.com/vk/flowgridgo/modules/print"
	"github.com/vk/flowgridgo/modules/relay"
	"github.com/vk/flowgridgo/modules/sum"
)

// coreModules is the definitive list of node modules compiled into the
// flowgridgo binary. print writes to out.
func coreModules(cfg *Config, out io.Writer) []registry.Module {
	return []registry.Module{
		&counter.Module{TickFrequency: cfg.TickFrequency},
		&env_vars.Module{},
		&http_request.Module{},
		&print.Module{Out: out},
		&relay.Module{},
		&sum.Module{},
	}
}
