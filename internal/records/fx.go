package records

import (
	"github.com/smallbiznis/pulse/internal/records/service"
	"go.uber.org/fx"
)

var Module = fx.Module("records",
	fx.Provide(service.NewSource),
)
