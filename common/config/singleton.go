package config

// Singleton is the process wide option registry, packages register their options on it at init
var Singleton = NewConfigManager()

func AddSource(source ConfigSource) {
	Singleton.AddSource(source)
}

func RegisterOption(name, desc string, defaultValue interface{}) *ConfigOption {
	return Singleton.RegisterOption(name, desc, defaultValue)
}

func Load() {
	Singleton.Load()
}

func Options() []*ConfigOption {
	return Singleton.Sorted()
}
