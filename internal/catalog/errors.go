package catalog

import "errors"

var ErrInvalidProduct = errors.New("invalid product record")
var ErrProductNotFound = errors.New("product not found")
