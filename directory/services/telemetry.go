package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissionsMetric       = promauto.NewCounter(prometheus.CounterOpts{Name: "directory_submissions", Help: "Restaurant submissions created"})
	approvalsMetric         = promauto.NewCounter(prometheus.CounterOpts{Name: "directory_approvals", Help: "Restaurant submissions approved"})
	rejectionsMetric        = promauto.NewCounter(prometheus.CounterOpts{Name: "directory_rejections", Help: "Restaurant submissions rejected"})
	mealRegistrationsMetric = promauto.NewCounter(prometheus.CounterOpts{Name: "directory_meal_registrations", Help: "Meals registered"})
)
