package registry

import (
	"github.com/loomworks/loom/pkg/executors/delay"
	"github.com/loomworks/loom/pkg/executors/end"
	"github.com/loomworks/loom/pkg/executors/httprequest"
	"github.com/loomworks/loom/pkg/executors/humantask"
	executorlog "github.com/loomworks/loom/pkg/executors/log"
	"github.com/loomworks/loom/pkg/executors/transform"
)

// RegisterDefaults registers all built-in executor factories.
func (r *Registry) RegisterDefaults() {
	r.Register(transform.NewFactory())
	r.Register(executorlog.NewFactory())
	r.Register(httprequest.NewFactory())
	r.Register(humantask.NewFactory())
	r.Register(delay.NewFactory())
	r.Register(end.NewFactory())
}
