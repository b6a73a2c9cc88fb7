package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ Persistence     = (*MemoryPersistence)(nil)
	_ CredentialCodec = JSONCredentialCodec{}
	_ ConfigProvider  = (*CfgxConfigProvider)(nil)
	_ OptionsResolver = GoOptionsResolver{}
	_ RawConfigLoader = StaticRawConfigLoader{}

	_ PaySignatureFunc     = DefaultPaySignature
	_ SessionSignatureFunc = DefaultSessionSignature

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
