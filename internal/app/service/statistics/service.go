package statistics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/castaway-live/castaway/internal/models"
	"github.com/castaway-live/castaway/pkg/types"
)

type StatisticType string

const (
	// Daily counts and revenue
	StatisticTypeDailyOrderCount StatisticType = "daily_order_count"
	StatisticTypeDailyRevenue    StatisticType = "daily_revenue"
	StatisticTypeTotalRevenue    StatisticType = "total_revenue"

	// Premium entitlement related
	StatisticTypeActivePremiumCount   StatisticType = "active_premium_count"
	StatisticTypeDailyNewPremiumCount StatisticType = "daily_new_premium_count"
)

type RevenueStatisticFilterType string

const (
	RevenueStatisticFilterTypeTier   RevenueStatisticFilterType = "tier"
	RevenueStatisticFilterTypeStatus RevenueStatisticFilterType = "status"
)

var filterTypes = []RevenueStatisticFilterType{
	RevenueStatisticFilterTypeTier,
	RevenueStatisticFilterTypeStatus,
}

var validFilters = map[RevenueStatisticFilterType][]StatisticType{
	RevenueStatisticFilterTypeTier:   {StatisticTypeDailyOrderCount, StatisticTypeDailyRevenue},
	RevenueStatisticFilterTypeStatus: {StatisticTypeDailyOrderCount},
}

type RevenueStatisticDataItem struct {
	ID StatisticType `json:"id"`
}

type RevenueStatisticRequest struct {
	Filters   []*types.CommonFilter       `json:"filters"`
	DataItems []*RevenueStatisticDataItem `json:"data_items"`
}

func (f *RevenueStatisticRequest) GetFilters(statisticType StatisticType) *RevenueStatisticRequest {
	if f == nil || len(f.Filters) == 0 {
		return f
	}
	var result RevenueStatisticRequest
	for _, filter := range f.Filters {
		if statisticTypes, ok := validFilters[RevenueStatisticFilterType(filter.Field)]; ok {
			if lo.Contains(statisticTypes, statisticType) {
				result.Filters = append(result.Filters, filter)
			}
		} else {
			result.Filters = append(result.Filters, filter)
		}
	}
	return &result
}

// Build composes a WHERE clause from the provided filters.
func (f *RevenueStatisticRequest) Build(builder clause.Builder) {
	if len(f.Filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	for i, filter := range f.Filters {
		if i > 0 {
			builder.WriteString(" AND ")
		}
		filter.Build(builder)
	}
}

type RevenueStatisticResponseDataItem struct {
	Date  string `json:"date"`
	Label string `json:"label,omitempty"`
	Value int64  `json:"value"`
}

type RevenueStatisticResponse struct {
	DataItems map[StatisticType][]RevenueStatisticResponseDataItem `json:"data_items"`
}

// Service provides statistics operations over the payment ledger.
type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service { return &Service{db: db} }

func (s *Service) getDailyOrderCount(ctx context.Context, request *RevenueStatisticRequest) ([]RevenueStatisticResponseDataItem, error) {
	var results []RevenueStatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.PaymentOrder{}).TableName()).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') as date, count(*) as value").
		Where(clause.Where{Exprs: []clause.Expression{request.GetFilters(StatisticTypeDailyOrderCount)}}).
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Order("date")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyRevenue(ctx context.Context, request *RevenueStatisticRequest) ([]RevenueStatisticResponseDataItem, error) {
	var results []RevenueStatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.PaymentOrder{}).TableName()).
		Select("TO_CHAR(completed_at, 'YYYY-MM-DD') as date, currency AS label, sum(amount_cents) as value").
		Where("status = ?", types.OrderStatusCompleted).
		Where(clause.Where{Exprs: []clause.Expression{request.GetFilters(StatisticTypeDailyRevenue)}}).
		Group("TO_CHAR(completed_at, 'YYYY-MM-DD')").
		Group("currency").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true})
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getTotalRevenue(ctx context.Context, _ *RevenueStatisticRequest) ([]RevenueStatisticResponseDataItem, error) {
	var results []RevenueStatisticResponseDataItem
	err := s.db.WithContext(ctx).Raw(`
WITH min_max_dates AS (
    SELECT MIN(DATE(completed_at)) as min_date, MAX(DATE(completed_at)) as max_date
    FROM payment_order WHERE status = ?
),
distinct_dates AS (
    SELECT generate_series(min_date, max_date, '1 day'::interval) as date FROM min_max_dates
),
dates AS (
    SELECT TO_CHAR(date, 'YYYY-MM-DD') as date FROM distinct_dates
),
currencies AS (
    SELECT DISTINCT currency as label FROM payment_order WHERE status = ?
),
date_currency_combinations AS (
    SELECT d.date, c.label FROM dates d CROSS JOIN currencies c
),
revenue_date AS (
    SELECT dc.date, dc.label, COALESCE(SUM(o.amount_cents), 0) as value
    FROM date_currency_combinations dc
    LEFT JOIN payment_order o
      ON TO_CHAR(o.completed_at, 'YYYY-MM-DD') = dc.date
     AND o.currency = dc.label
     AND o.status = ?
    GROUP BY dc.date, dc.label
)
SELECT d.date as date, d.label as label, SUM(s.value) as value
FROM revenue_date d
LEFT JOIN revenue_date s ON s.date <= d.date AND s.label = d.label
GROUP BY d.date, d.label
ORDER BY d.date DESC, d.label ASC
`, types.OrderStatusCompleted, types.OrderStatusCompleted, types.OrderStatusCompleted).Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getActivePremiumCount(ctx context.Context, _ *RevenueStatisticRequest) ([]RevenueStatisticResponseDataItem, error) {
	var results []RevenueStatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.Entitlement{}).TableName()).
		Select("count(*) as value").
		Where("is_active = ?", true).
		Where("expires_at >= ?", time.Now())
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyNewPremiumCount(ctx context.Context, _ *RevenueStatisticRequest) ([]RevenueStatisticResponseDataItem, error) {
	var results []RevenueStatisticResponseDataItem
	err := s.db.WithContext(ctx).Raw(`
WITH distinct_dates AS (
    SELECT DISTINCT DATE(started_at) as date FROM entitlement WHERE started_at IS NOT NULL ORDER BY date
),
user_id_date AS (
    SELECT user_id, DATE(started_at) as date FROM entitlement WHERE started_at IS NOT NULL
)
SELECT TO_CHAR(d.date, 'YYYY-MM-DD') as date, COUNT(DISTINCT s.user_id) as value
FROM distinct_dates d
JOIN user_id_date s ON s.date = d.date
GROUP BY d.date
ORDER BY d.date DESC
`).Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getRevenueStatistic(ctx context.Context, request *RevenueStatisticRequest, dataItem *RevenueStatisticDataItem) ([]RevenueStatisticResponseDataItem, error) {
	switch dataItem.ID {
	case StatisticTypeDailyOrderCount:
		return s.getDailyOrderCount(ctx, request)
	case StatisticTypeDailyRevenue:
		return s.getDailyRevenue(ctx, request)
	case StatisticTypeTotalRevenue:
		return s.getTotalRevenue(ctx, request)
	case StatisticTypeActivePremiumCount:
		return s.getActivePremiumCount(ctx, request)
	case StatisticTypeDailyNewPremiumCount:
		return s.getDailyNewPremiumCount(ctx, request)
	default:
		return nil, fmt.Errorf("invalid data item id: %s", dataItem.ID)
	}
}

func (s *Service) GetRevenueStatistic(ctx context.Context, request *RevenueStatisticRequest) (*RevenueStatisticResponse, error) {
	var wg sync.WaitGroup
	errChan := make(chan error, len(request.DataItems))
	resChan := make(chan *lo.Entry[StatisticType, []RevenueStatisticResponseDataItem], len(request.DataItems))

	for _, item := range request.DataItems {
		wg.Add(1)
		go func(di *RevenueStatisticDataItem) {
			defer wg.Done()
			// check filter applicability
			for _, filter := range request.Filters {
				ft := RevenueStatisticFilterType(filter.Field)
				if lo.Contains(filterTypes, ft) && !lo.Contains(validFilters[ft], di.ID) {
					resChan <- &lo.Entry[StatisticType, []RevenueStatisticResponseDataItem]{Key: di.ID, Value: nil}
					return
				}
			}
			res, err := s.getRevenueStatistic(ctx, request, di)
			if err != nil {
				errChan <- err
				return
			}
			resChan <- &lo.Entry[StatisticType, []RevenueStatisticResponseDataItem]{Key: di.ID, Value: res}
		}(item)
	}

	go func() { wg.Wait(); close(errChan); close(resChan) }()

	results := make(map[StatisticType][]RevenueStatisticResponseDataItem)
	for i := 0; i < len(request.DataItems); i++ {
		select {
		case err := <-errChan:
			if err != nil {
				return nil, err
			}
		case entry := <-resChan:
			results[entry.Key] = entry.Value
		}
	}
	return &RevenueStatisticResponse{DataItems: results}, nil
}
