package sms

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smsauth/smsauth/internal/config"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	tcerrors "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/errors"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	tcsms "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/sms/v20210111"
)

const endpoint = "sms.tencentcloudapi.com"

// TencentSender delivers verification codes through Tencent Cloud SMS.
// The configured template takes two parameters: the code and its validity
// in minutes.
type TencentSender struct {
	client        *tcsms.Client
	appID         string
	signName      string
	templateID    string
	expiryMinutes string
	logger        *logrus.Logger
}

func NewTencentSender(cfg *config.SMSConfig, codeTTL time.Duration, logger *logrus.Logger) (*TencentSender, error) {
	if cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("missing Tencent SMS credentials")
	}
	if cfg.AppID == "" || cfg.SignName == "" || cfg.TemplateID == "" {
		return nil, fmt.Errorf("missing Tencent SMS app/sign/template configuration")
	}

	credential := common.NewCredential(cfg.SecretID, cfg.SecretKey)
	cpf := profile.NewClientProfile()
	cpf.HttpProfile.Endpoint = endpoint

	client, err := tcsms.NewClient(credential, cfg.Region, cpf)
	if err != nil {
		return nil, fmt.Errorf("failed to create Tencent SMS client: %w", err)
	}

	return &TencentSender{
		client:        client,
		appID:         cfg.AppID,
		signName:      cfg.SignName,
		templateID:    cfg.TemplateID,
		expiryMinutes: strconv.Itoa(int(codeTTL.Minutes())),
		logger:        logger,
	}, nil
}

// SendCode sends a single templated message carrying the code. A per-number
// delivery status other than "Ok" is an error even when the API call itself
// succeeds.
func (s *TencentSender) SendCode(ctx context.Context, phoneNumber, code string) error {
	req := tcsms.NewSendSmsRequest()
	req.SmsSdkAppId = common.StringPtr(s.appID)
	req.SignName = common.StringPtr(s.signName)
	req.TemplateId = common.StringPtr(s.templateID)
	req.PhoneNumberSet = common.StringPtrs([]string{phoneNumber})
	req.TemplateParamSet = common.StringPtrs([]string{code, s.expiryMinutes})

	resp, err := s.client.SendSmsWithContext(ctx, req)
	if err != nil {
		var sdkErr *tcerrors.TencentCloudSDKError
		if errors.As(err, &sdkErr) {
			return fmt.Errorf("tencent sms %s: %s (request id %s)",
				sdkErr.GetCode(), sdkErr.GetMessage(), sdkErr.GetRequestId())
		}
		return fmt.Errorf("tencent sms request failed: %w", err)
	}

	requestID := ""
	if resp.Response != nil && resp.Response.RequestId != nil {
		requestID = *resp.Response.RequestId
	}

	if resp.Response == nil || len(resp.Response.SendStatusSet) == 0 {
		return fmt.Errorf("tencent sms: empty send status (request id %s)", requestID)
	}

	status := resp.Response.SendStatusSet[0]
	if status.Code == nil || *status.Code != "Ok" {
		statusCode := "Unknown"
		if status.Code != nil {
			statusCode = *status.Code
		}
		message := "SendSms failed"
		if status.Message != nil {
			message = *status.Message
		}
		return fmt.Errorf("tencent sms %s: %s (request id %s)", statusCode, message, requestID)
	}

	s.logger.WithFields(logrus.Fields{
		"phone":      phoneNumber,
		"request_id": requestID,
	}).Debug("SMS accepted by provider")

	return nil
}
