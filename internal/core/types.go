package core

import "virsift/pkg/domain"

type (
	Record   = domain.Record
	Dataset  = domain.Dataset
	Date     = domain.Date
	Month    = domain.Month
	FieldKey = domain.FieldKey
	Action   = domain.Action
)

const Unknown = domain.Unknown
