package services

import (
	"fmt"

	dataagg "github.com/yungbote/lotline-backend/internal/data/aggregates"
	domainagg "github.com/yungbote/lotline-backend/internal/domain/aggregates"
)

func notFound(op, format string, args ...any) error {
	return domainagg.NewKindError(domainagg.KindNotFound, op, fmt.Sprintf(format, args...), nil)
}

func invalid(op, format string, args ...any) error {
	return domainagg.NewKindError(domainagg.KindValidation, op, fmt.Sprintf(format, args...), nil)
}

// storageErr gives read failures the same shape as write failures.
func storageErr(op string, err error) error {
	return dataagg.MapError(op, err)
}
