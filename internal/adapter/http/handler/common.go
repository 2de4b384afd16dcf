package handler

import (
	"fmt"
	"strconv"

	"yield-bnpl/internal/adapter/http/dto"
	"yield-bnpl/internal/adapter/http/middleware"
	"yield-bnpl/internal/core/domain"
	"yield-bnpl/pkg/apperror"
	"yield-bnpl/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// callerOf returns the authenticated caller or writes an invalid-token error.
func callerOf(c *gin.Context) (domain.Caller, bool) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
	}
	return caller, ok
}

// bindJSON binds and sanitizes a request body, writing a validation error on failure.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return false
	}
	dto.SanitizeStruct(req)
	return true
}

func parseUUID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperror.Validation(fmt.Sprintf("%s must be a UUID", field))
	}
	return id, nil
}

// pageParams reads page and page_size, clamping them to sane bounds.
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}
	return page, pageSize
}

// obligationKeyParam reads the composite key from :buyer_id/:merchant_id/:sequence.
func obligationKeyParam(c *gin.Context) (domain.ObligationKey, error) {
	buyerID, err := parseUUID(c.Param("buyer_id"), "buyer_id")
	if err != nil {
		return domain.ObligationKey{}, err
	}
	merchantID, err := parseUUID(c.Param("merchant_id"), "merchant_id")
	if err != nil {
		return domain.ObligationKey{}, err
	}
	seq, err := strconv.ParseInt(c.Param("sequence"), 10, 64)
	if err != nil || seq < 0 {
		return domain.ObligationKey{}, apperror.Validation("sequence must be a non-negative integer")
	}
	return domain.ObligationKey{BuyerID: buyerID, MerchantID: merchantID, Sequence: seq}, nil
}

func parseUnix(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}
