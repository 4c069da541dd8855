// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package desired

import (
	"io"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	"sigs.k8s.io/controller-runtime/pkg/client/apiutil"

	"github.com/helixstack/helixctl/pkg/utils/k8s"
)

const documentSeparator = "---\n"

// Render writes the resources of the set as a YAML stream, in the order they are applied.
func Render(w io.Writer, set *Set) error {
	for i, r := range set.All() {
		obj := r.Object.DeepCopyObject()
		// objects built in memory do not always carry their type
		gvk, err := apiutil.GVKForObject(obj, k8s.Scheme())
		if err != nil {
			return errors.Wrapf(err, "while resolving the type of %s", r.Identity())
		}
		obj.GetObjectKind().SetGroupVersionKind(gvk)

		out, err := yaml.Marshal(obj)
		if err != nil {
			return errors.Wrapf(err, "while rendering %s", r.Identity())
		}
		if i > 0 {
			if _, err := io.WriteString(w, documentSeparator); err != nil {
				return err
			}
		}
		if _, err := w.Write(out); err != nil {
			return err
		}
	}
	return nil
}
