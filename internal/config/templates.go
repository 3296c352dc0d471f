package config

import (
	"fmt"
	"sort"
)

// Reference experiment shapes. These are starting points for operators, not
// runtime behavior: the engine treats experiments created from them like any
// other.
var templates = map[string]string{
	"content": contentTemplate,
	"flow":    flowTemplate,
}

// contentTemplate is a two-variant 50/50 content test measuring a
// completion-rate metric.
const contentTemplate = `id: onboarding-welcome-copy
name: Onboarding welcome copy
description: Compare welcome headline copy on the first wizard step
type: content
variants:
  - id: control
    name: Current copy
    weight: 50
    isControl: true
    configuration:
      headline: "Welcome! Let's set up your account."
  - id: benefit-led
    name: Benefit-led copy
    weight: 50
    configuration:
      headline: "You're 3 steps from your first campaign."
metrics:
  - id: completion-rate
    name: completion_rate
    type: conversion
    eventType: onboarding_completed
    isPrimary: true
    goal: increase
trafficAllocation: 100
`

// flowTemplate compares a detailed onboarding path against a simplified one.
const flowTemplate = `id: onboarding-flow-length
name: Onboarding flow length
description: Detailed five-step flow vs simplified two-step flow
type: flow
variants:
  - id: detailed
    name: Detailed flow
    weight: 50
    isControl: true
    configuration:
      steps: [profile, team, goals, integrations, confirm]
  - id: simplified
    name: Simplified flow
    weight: 50
    configuration:
      steps: [profile, confirm]
metrics:
  - id: completion-rate
    name: completion_rate
    type: conversion
    eventType: onboarding_completed
    isPrimary: true
    goal: increase
  - id: step-engagement
    name: step_engagement
    type: engagement
    eventType: onboarding_step_completed
trafficAllocation: 100
minSampleSize: 100
`

// Template returns the named reference definition, parsed and normalized.
func Template(name string) ([]byte, error) {
	t, ok := templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown template: %s (available: %v)", name, TemplateNames())
	}
	return []byte(t), nil
}

// TemplateNames lists the available reference templates.
func TemplateNames() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
