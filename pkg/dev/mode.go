// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package dev

// Enabled switches helixctl to development mode: colored console logs at debug level
// instead of JSON. Only settable through the hidden --development flag.
var Enabled = false
